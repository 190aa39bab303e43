package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/cache"
	pgrepo "github.com/KomalSiddharth/Intelligent-manifestation-System/internal/repositories/postgres"
)

// matchThreshold mirrors the chat engine: hits scoring below it are noise.
const matchThreshold = 0.35

const cacheTTL = 5 * time.Minute

// PGVector searches the knowledge_chunks table by cosine similarity over the
// query embedding. Results are cached per (user, query) so repeated questions
// inside one conversation do not re-embed.
type PGVector struct {
	repo     pgrepo.KnowledgeRepo
	embedder Embedder
	cache    cache.Cache
	log      *logrus.Logger
}

func NewPGVector(repo pgrepo.KnowledgeRepo, embedder Embedder, c cache.Cache, log *logrus.Logger) *PGVector {
	if c == nil {
		c = cache.Noop{}
	}
	return &PGVector{repo: repo, embedder: embedder, cache: c, log: log}
}

func (p *PGVector) Search(ctx context.Context, userID, query string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 5
	}

	key := cacheKey(userID, query)
	var cached []Snippet
	if hit, err := p.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := p.repo.SearchByEmbedding(ctx, userID, vec, topK)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		if h.Score < matchThreshold {
			continue
		}
		snippets = append(snippets, Snippet{
			SourceTitle: h.SourceTitle,
			Content:     h.Content,
			Score:       h.Score,
		})
	}

	if err := p.cache.SetJSON(ctx, key, snippets, cacheTTL); err != nil {
		p.log.WithError(err).Debug("retrieval: cache write failed")
	}
	return snippets, nil
}

func cacheKey(userID, query string) string {
	sum := sha256.Sum256([]byte(query))
	return "kb:" + userID + ":" + hex.EncodeToString(sum[:8])
}
