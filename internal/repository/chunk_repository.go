package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docchat/internal/model"
	"docchat/internal/rag"
)

const (
	hnswIndexName      = "document_chunks_embedding_hnsw_idx"
	hnswM              = 16
	hnswEfConstruction = 64
)

type Coverage struct {
	TotalChunks    int64   `json:"totalChunks"`
	WithEmbeddings int64   `json:"chunksWithEmbeddings"`
	Percent        float64 `json:"coverage"`
}

// ChunkRepository answers nearest-neighbour queries over chunk vectors.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

type neighborRow struct {
	ID            uint
	DocumentID    string
	Content       string
	SectionTitle  string
	ChunkIndex    int
	ChunkType     string
	DocumentTitle string
	FileName      string
	Distance      float64
}

// NearestChunks orders chunks that have a vector by cosine distance to vector.
func (r *ChunkRepository) NearestChunks(ctx context.Context, vector []float32, limit int, filter rag.Filter) ([]rag.Neighbor, error) {
	var (
		where = []string{"dc.embedding IS NOT NULL"}
		args  = []any{pgvector.NewVector(vector)}
	)
	if filter.DocumentType != "" {
		where = append(where, "d.type = ?")
		args = append(args, filter.DocumentType)
	}
	if filter.DocumentID != "" {
		where = append(where, "dc.document_id = ?")
		args = append(args, filter.DocumentID)
	}
	args = append(args, limit)

	query := `SELECT dc.id, dc.document_id, dc.content, dc.section_title, dc.chunk_index, dc.chunk_type,
		d.title AS document_title, d.file_name, dc.embedding <=> ? AS distance
		FROM document_chunks dc
		JOIN documents d ON d.id = dc.document_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY distance ASC
		LIMIT ?`

	var rows []neighborRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("nearest chunks query failed: %w", err)
	}

	out := make([]rag.Neighbor, 0, len(rows))
	for _, row := range rows {
		out = append(out, rag.Neighbor{
			Chunk: rag.ChunkRef{
				ID:            row.ID,
				DocumentID:    row.DocumentID,
				Content:       row.Content,
				SectionTitle:  row.SectionTitle,
				SequenceIndex: row.ChunkIndex,
				ChunkType:     row.ChunkType,
			},
			DocumentTitle: row.DocumentTitle,
			FileName:      row.FileName,
			Distance:      row.Distance,
		})
	}
	return out, nil
}

// EnsureExtension installs pgvector if the database lacks it.
func (r *ChunkRepository) EnsureExtension(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ExtensionInstalled(ctx context.Context) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Raw("SELECT COUNT(*) FROM pg_extension WHERE extname = 'vector'").Scan(&n).Error
	if err != nil {
		return false, fmt.Errorf("check vector extension failed: %w", err)
	}
	return n > 0, nil
}

// CreateIndex builds the HNSW cosine index over chunk embeddings.
func (r *ChunkRepository) CreateIndex(ctx context.Context) error {
	if err := r.EnsureExtension(ctx); err != nil {
		return err
	}
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON document_chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)",
		hnswIndexName, hnswM, hnswEfConstruction,
	)
	if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("create hnsw index failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) Coverage(ctx context.Context) (*Coverage, error) {
	var c Coverage
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.DocumentChunk{}).Count(&c.TotalChunks).Error; err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	if err := db.Model(&model.DocumentChunk{}).Where("embedding IS NOT NULL").Count(&c.WithEmbeddings).Error; err != nil {
		return nil, fmt.Errorf("count embedded chunks failed: %w", err)
	}
	if c.TotalChunks > 0 {
		c.Percent = float64(c.WithEmbeddings) / float64(c.TotalChunks) * 100
	}
	return &c, nil
}
