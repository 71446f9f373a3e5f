package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// EmbeddingDimensions must match the vector column width.
const EmbeddingDimensions = 1536

// DocumentChunk is one retrievable unit. Chunks without an embedding are never
// returned by similarity search.
type DocumentChunk struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	DocumentID   string           `gorm:"type:uuid;not null;index" json:"documentId"`
	ChunkIndex   int              `gorm:"not null" json:"chunkIndex"`
	Content      string           `gorm:"type:text;not null" json:"content"`
	SectionTitle string           `gorm:"size:512" json:"sectionTitle"`
	ChunkType    string           `gorm:"size:32;not null" json:"chunkType"`
	Metadata     datatypes.JSON   `gorm:"type:jsonb" json:"metadata"`
	Embedding    *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt    time.Time        `json:"createdAt"`
}
