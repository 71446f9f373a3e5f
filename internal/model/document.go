package model

import "time"

type DocumentType string

const (
	DocumentMarkdown DocumentType = "markdown"
	DocumentOpenAPI  DocumentType = "openapi"
	DocumentPDF      DocumentType = "pdf"
)

type Document struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string          `gorm:"size:256;not null" json:"title"`
	FileName   string          `gorm:"size:256;not null" json:"fileName"`
	Type       DocumentType    `gorm:"size:32;not null;index" json:"type"`
	Content    string          `gorm:"type:text;not null" json:"-"`
	SizeBytes  int64           `gorm:"not null" json:"sizeBytes"`
	ChunkCount int             `gorm:"not null;default:0" json:"chunkCount"`
	Chunks     []DocumentChunk `gorm:"constraint:OnDelete:CASCADE" json:"chunks,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
