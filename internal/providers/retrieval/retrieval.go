package retrieval

import "context"

// Snippet is one ranked piece of retrieved knowledge.
type Snippet struct {
	SourceTitle string  `json:"source_title"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
}

type Retriever interface {
	// Search returns up to topK snippets relevant to query, best first.
	// An empty result is normal and means the base persona prompt stands.
	Search(ctx context.Context, userID, query string, topK int) ([]Snippet, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}
