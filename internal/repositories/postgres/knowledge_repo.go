package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/models"
)

type SearchHit struct {
	models.KnowledgeChunk
	Score float64 `gorm:"column:score" json:"score"`
}

type KnowledgeRepo interface {
	Insert(ctx context.Context, chunk *models.KnowledgeChunk) error
	// SearchByEmbedding returns the topK chunks nearest to the query vector,
	// scored by cosine similarity in [0,1], best first.
	SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int) ([]SearchHit, error)
}

type knowledgeRepo struct {
	db *gorm.DB
}

func NewKnowledgeRepo(db *gorm.DB) KnowledgeRepo {
	return &knowledgeRepo{db: db}
}

func (r *knowledgeRepo) Insert(ctx context.Context, chunk *models.KnowledgeChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

func (r *knowledgeRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int) ([]SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := pgvector.NewVector(query)

	var hits []SearchHit
	err := r.db.WithContext(ctx).
		Raw(`SELECT *, 1 - (embedding <=> ?) AS score
		     FROM knowledge_chunks
		     WHERE user_id = ?
		     ORDER BY embedding <=> ?
		     LIMIT ?`, vec, userID, vec, topK).
		Scan(&hits).Error
	return hits, err
}
