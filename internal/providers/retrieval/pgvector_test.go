package retrieval

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/models"
	pgrepo "github.com/KomalSiddharth/Intelligent-manifestation-System/internal/repositories/postgres"
)

type fakeKnowledgeRepo struct {
	hits    []pgrepo.SearchHit
	lastTop int
	calls   int
}

func (f *fakeKnowledgeRepo) Insert(ctx context.Context, chunk *models.KnowledgeChunk) error {
	return nil
}

func (f *fakeKnowledgeRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int) ([]pgrepo.SearchHit, error) {
	f.calls++
	f.lastTop = topK
	return f.hits, nil
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Close() error { return nil }

// mapCache is an in-memory stand-in for the redis cache.
type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string][]byte)} }

func (c *mapCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = b
	return nil
}

func (c *mapCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

func hit(title, content string, score float64) pgrepo.SearchHit {
	return pgrepo.SearchHit{
		KnowledgeChunk: models.KnowledgeChunk{SourceTitle: title, Content: content},
		Score:          score,
	}
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestSearchFiltersLowScores(t *testing.T) {
	repo := &fakeKnowledgeRepo{hits: []pgrepo.SearchHit{
		hit("guide", "relevant fact", 0.82),
		hit("guide", "borderline fact", 0.36),
		hit("noise", "irrelevant", 0.10),
	}}
	p := NewPGVector(repo, &fakeEmbedder{}, nil, quietLog())

	got, err := p.Search(context.Background(), "u1", "what is my goal", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snippets, want 2 above threshold: %+v", len(got), got)
	}
	if got[0].Content != "relevant fact" || got[1].Content != "borderline fact" {
		t.Fatalf("snippets = %+v", got)
	}
	if repo.lastTop != 5 {
		t.Fatalf("topK = %d, want 5", repo.lastTop)
	}
}

func TestSearchCachesPerUserAndQuery(t *testing.T) {
	repo := &fakeKnowledgeRepo{hits: []pgrepo.SearchHit{hit("guide", "fact", 0.9)}}
	emb := &fakeEmbedder{}
	p := NewPGVector(repo, emb, newMapCache(), quietLog())

	ctx := context.Background()
	if _, err := p.Search(ctx, "u1", "same question", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Search(ctx, "u1", "same question", 5); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 1 || repo.calls != 1 {
		t.Fatalf("embed calls = %d, repo calls = %d, want 1 each (second hit cached)", emb.calls, repo.calls)
	}

	// a different user misses the cache even for the same query
	if _, err := p.Search(ctx, "u2", "same question", 5); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 2 {
		t.Fatalf("embed calls = %d, want 2", emb.calls)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	repo := &fakeKnowledgeRepo{}
	p := NewPGVector(repo, &fakeEmbedder{}, nil, quietLog())

	if _, err := p.Search(context.Background(), "u1", "q", 0); err != nil {
		t.Fatal(err)
	}
	if repo.lastTop != 5 {
		t.Fatalf("topK = %d, want default 5", repo.lastTop)
	}
}

func TestCacheKeyDistinct(t *testing.T) {
	if cacheKey("u1", "a") == cacheKey("u1", "b") {
		t.Fatal("different queries share a cache key")
	}
	if cacheKey("u1", "a") == cacheKey("u2", "a") {
		t.Fatal("different users share a cache key")
	}
}
