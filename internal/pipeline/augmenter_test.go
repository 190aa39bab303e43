package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/retrieval"
)

// fakeRetriever answers each query with a canned snippet. Queries listed in
// hold are not answered until released, or until the search context expires.
type fakeRetriever struct {
	mu    sync.Mutex
	hold  map[string]chan struct{}
	empty bool
}

func (f *fakeRetriever) gate(query string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold == nil {
		f.hold = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	f.hold[query] = ch
	return ch
}

func (f *fakeRetriever) Search(ctx context.Context, userID, query string, topK int) ([]retrieval.Snippet, error) {
	f.mu.Lock()
	gate := f.hold[query]
	empty := f.empty
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if empty {
		return nil, nil
	}
	return []retrieval.Snippet{
		{SourceTitle: "notes", Content: "about " + query, Score: 0.8},
	}, nil
}

func testAugmenter(conv *Conversation, r retrieval.Retriever) *Augmenter {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Augmenter{
		Retriever:  r,
		Conv:       conv,
		BasePrompt: "persona",
		UserID:     "u1",
		Deadline:   100 * time.Millisecond,
		Log:        logrus.NewEntry(log),
	}
}

func waitForPrompt(t *testing.T, conv *Conversation, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(conv.Snapshot()[0].Content, substr) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("system prompt never contained %q: %q", substr, conv.Snapshot()[0].Content)
}

func TestAugmentEnrichesSystemPrompt(t *testing.T) {
	conv := NewConversation("persona", 10)
	a := testAugmenter(conv, &fakeRetriever{})

	a.Augment("goal setting")
	waitForPrompt(t, conv, "MANDATORY KNOWLEDGE CONTEXT")
	waitForPrompt(t, conv, "[Source: notes]")
	waitForPrompt(t, conv, "about goal setting")

	if !strings.HasPrefix(conv.Snapshot()[0].Content, "persona") {
		t.Fatal("base persona prompt missing from enriched prompt")
	}
}

func TestAugmentDeadlineLeavesPromptUntouched(t *testing.T) {
	conv := NewConversation("persona", 10)
	r := &fakeRetriever{}
	r.gate("slow query") // never released: only the deadline frees the search

	a := testAugmenter(conv, r)
	a.Augment("slow query")

	time.Sleep(250 * time.Millisecond)
	if got := conv.Snapshot()[0].Content; got != "persona" {
		t.Fatalf("prompt changed despite deadline: %q", got)
	}
}

func TestAugmentEmptyResultLeavesPromptUntouched(t *testing.T) {
	conv := NewConversation("persona", 10)
	a := testAugmenter(conv, &fakeRetriever{empty: true})

	a.Augment("anything")
	time.Sleep(100 * time.Millisecond)
	if got := conv.Snapshot()[0].Content; got != "persona" {
		t.Fatalf("prompt changed on empty result: %q", got)
	}
}

func TestAugmentLastWriterWins(t *testing.T) {
	conv := NewConversation("persona", 10)
	r := &fakeRetriever{}
	slow := r.gate("older query")

	a := testAugmenter(conv, r)
	a.Deadline = 2 * time.Second

	a.Augment("older query") // stalls until released
	a.Augment("newer query")
	waitForPrompt(t, conv, "about newer query")

	// the older search completes after the newer one already wrote
	close(slow)
	time.Sleep(100 * time.Millisecond)

	got := conv.Snapshot()[0].Content
	if strings.Contains(got, "about older query") {
		t.Fatalf("stale augmentation overwrote a newer one: %q", got)
	}
	if !strings.Contains(got, "about newer query") {
		t.Fatalf("newer augmentation lost: %q", got)
	}
}

func TestAugmentNilReceiverIsNoop(t *testing.T) {
	var a *Augmenter
	a.Augment("anything") // must not panic
}

func TestAugmentedPromptUnknownSource(t *testing.T) {
	out := AugmentedPrompt("base", []retrieval.Snippet{{Content: "fact"}})
	if !strings.Contains(out, "[Source: Unknown]") {
		t.Fatalf("missing unknown-source label: %q", out)
	}
}
