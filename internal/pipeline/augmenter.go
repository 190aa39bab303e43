package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/retrieval"
)

const DefaultAugmentDeadline = 4 * time.Second

// Augmenter enriches the system prompt with retrieved knowledge. It runs
// detached from the pipeline's critical path: a slow or failed retrieval is
// a logged no-op and the base persona prompt stands. When augmentations
// overlap, the last one started wins; since each write is derived only from
// the fixed base prompt, an out-of-order completion can at worst leave stale
// snippets, never a corrupted persona.
type Augmenter struct {
	Retriever  retrieval.Retriever
	Conv       *Conversation
	BasePrompt string
	UserID     string
	Deadline   time.Duration
	TopK       int
	Log        *logrus.Entry

	mu  sync.Mutex
	gen int64
}

// Augment fires one background retrieval for the finalized utterance and
// returns immediately.
func (a *Augmenter) Augment(query string) {
	if a == nil || a.Retriever == nil {
		return
	}

	a.mu.Lock()
	a.gen++
	g := a.gen
	a.mu.Unlock()

	go a.run(g, query)
}

func (a *Augmenter) run(g int64, query string) {
	deadline := a.Deadline
	if deadline <= 0 {
		deadline = DefaultAugmentDeadline
	}
	topK := a.TopK
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	snippets, err := a.Retriever.Search(ctx, a.UserID, query, topK)
	if err != nil {
		a.Log.WithError(err).Warn("augmenter: knowledge search failed")
		return
	}
	if len(snippets) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if g != a.gen {
		a.Log.Debug("augmenter: discarding stale result")
		return
	}
	a.Conv.ReplaceSystemPrompt(AugmentedPrompt(a.BasePrompt, snippets))
	a.Log.WithField("snippets", len(snippets)).Info("augmenter: system prompt enriched")
}

// AugmentedPrompt renders the base persona prompt plus retrieved context in
// the layout the generator is tuned for.
func AugmentedPrompt(base string, snippets []retrieval.Snippet) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nMANDATORY KNOWLEDGE CONTEXT:\n")
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[Source: ")
		if s.SourceTitle != "" {
			b.WriteString(s.SourceTitle)
		} else {
			b.WriteString("Unknown")
		}
		b.WriteString("]\n")
		b.WriteString(s.Content)
	}
	b.WriteString("\n\nRule: Use ONLY the above context to answer. If not found, stay in character but keep it short.")
	return b.String()
}
