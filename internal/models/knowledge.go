package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// KnowledgeChunk is one embedded slice of coaching material. Chunks are
// written by the ingestion tooling and only read at serving time; the voice
// pipeline itself never persists conversation turns.
type KnowledgeChunk struct {
	ID          string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string          `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	SourceTitle string          `gorm:"column:source_title;type:text" json:"source_title"`
	ChunkIndex  int             `gorm:"column:chunk_index" json:"chunk_index"`
	Content     string          `gorm:"column:content;type:text" json:"content"`
	Embedding   pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"embedding"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
	Metadata    datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (KnowledgeChunk) TableName() string { return "knowledge_chunks" }
