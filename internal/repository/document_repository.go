package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

const chunkInsertBatch = 100

type DocumentStats struct {
	Documents            int64   `json:"totalDocuments"`
	Chunks               int64   `json:"totalChunks"`
	AvgChunksPerDocument float64 `json:"avgChunksPerDocument"`
}

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Omit("Chunks").Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// InsertChunks stores one batch of chunks with their vectors atomically.
func (r *DocumentRepository) InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&chunks, chunkInsertBatch).Error
	})
	if err != nil {
		return fmt.Errorf("insert document chunks failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) UpdateChunkCount(ctx context.Context, id string, count int) error {
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("chunk_count", count).Error
	if err != nil {
		return fmt.Errorf("update document chunk count failed: %w", err)
	}
	return nil
}

// Delete removes the document and its chunks, reporting whether it existed.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete document failed: %w", err)
	}
	return affected > 0, nil
}

// GetWithChunks returns nil when the document does not exist.
func (r *DocumentRepository) GetWithChunks(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_index ASC") }).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Select("id", "title", "file_name", "type", "size_bytes", "chunk_count", "created_at", "updated_at").
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return n, nil
}

func (r *DocumentRepository) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}

func (r *DocumentRepository) Stats(ctx context.Context) (*DocumentStats, error) {
	docs, err := r.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := r.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	stats := &DocumentStats{Documents: docs, Chunks: chunks}
	if docs > 0 {
		stats.AvgChunksPerDocument = float64(chunks) / float64(docs)
	}
	return stats, nil
}
