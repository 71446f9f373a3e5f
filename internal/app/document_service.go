package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"docchat/internal/ai"
	"docchat/internal/chunker"
	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/rag"
	"docchat/internal/repository"
	"docchat/internal/telemetry"
)

const (
	DefaultIngestBatchSize = 20
	DefaultMaxUploadBytes  = 10 << 20
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error
	UpdateChunkCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) (bool, error)
	GetWithChunks(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Stats(ctx context.Context) (*repository.DocumentStats, error)
}

type BatchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentServiceConfig struct {
	MaxUploadBytes int64
	BatchSize      int
	Throttle       rag.Throttle
	// Dimensions, when set, is the vector width every stored embedding must have.
	Dimensions int
}

type DocumentService struct {
	store    DocumentStore
	embedder BatchEmbedder
	chunker  *chunker.Chunker
	metrics  *telemetry.Metrics
	cfg      DocumentServiceConfig
}

type UploadInput struct {
	FileName string
	Title    string
	Data     []byte
}

type UploadResult struct {
	Document   *model.Document `json:"document"`
	ChunkCount int             `json:"chunkCount"`
	DurationMs int64           `json:"processingTime"`
}

func NewDocumentService(store DocumentStore, embedder BatchEmbedder, c *chunker.Chunker, metrics *telemetry.Metrics, cfg DocumentServiceConfig) *DocumentService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIngestBatchSize
	}
	if c == nil {
		c = chunker.New(chunker.Options{})
	}
	return &DocumentService{store: store, embedder: embedder, chunker: c, metrics: metrics, cfg: cfg}
}

// DetectType maps a file extension to the document type used for chunking.
func DetectType(fileName string) (model.DocumentType, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".md", ".markdown":
		return model.DocumentMarkdown, nil
	case ".json", ".yaml", ".yml":
		return model.DocumentOpenAPI, nil
	case ".pdf":
		return model.DocumentPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Upload chunks, embeds and stores a document. Either every chunk is stored
// with its vector or the document is removed again.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	started := time.Now()
	fileName := filepath.Base(strings.TrimSpace(in.FileName))
	if fileName == "" || fileName == "." {
		return nil, invalidInput("file name is required")
	}
	docType, err := DetectType(fileName)
	if err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, ErrDocumentEmpty
	}
	if int64(len(in.Data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, len(in.Data))
	}

	content, chunks, err := s.split(docType, fileName, in.Data)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	doc := &model.Document{
		ID:        uuid.NewString(),
		Title:     title,
		FileName:  fileName,
		Type:      docType,
		Content:   content,
		SizeBytes: int64(len(in.Data)),
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}
	logger.Info("document: created", "document_id", doc.ID, "file", fileName, "type", docType, "chunks", len(chunks))

	if err := s.ingest(ctx, doc.ID, chunks); err != nil {
		s.metrics.RecordIngestion(ctx, string(docType), time.Since(started).Seconds(), 0, false)
		return nil, err
	}
	if err := s.store.UpdateChunkCount(ctx, doc.ID, len(chunks)); err != nil {
		return nil, err
	}
	doc.ChunkCount = len(chunks)

	elapsed := time.Since(started)
	s.metrics.RecordIngestion(ctx, string(docType), elapsed.Seconds(), len(chunks), true)
	logger.Info("document: ingested", "document_id", doc.ID, "chunks", len(chunks), "elapsed_ms", elapsed.Milliseconds())
	return &UploadResult{Document: doc, ChunkCount: len(chunks), DurationMs: elapsed.Milliseconds()}, nil
}

func (s *DocumentService) split(docType model.DocumentType, fileName string, data []byte) (string, []chunker.Chunk, error) {
	if docType == model.DocumentPDF {
		pages, err := pdfextract.Pages(data)
		if err != nil {
			return "", nil, invalidInput("unreadable pdf: %v", err)
		}
		content := strings.Join(pages, "\n\n")
		if strings.TrimSpace(content) == "" {
			return "", nil, ErrDocumentEmpty
		}
		return content, s.chunker.Pages(fileName, pages), nil
	}

	if !utf8.Valid(data) {
		return "", nil, invalidInput("document is not valid UTF-8 text")
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return "", nil, ErrDocumentEmpty
	}
	chunks := s.chunker.Split(chunker.ChunkType(docType), fileName, content)
	if len(chunks) == 0 {
		return "", nil, ErrDocumentEmpty
	}
	return content, chunks, nil
}

func (s *DocumentService) ingest(ctx context.Context, documentID string, chunks []chunker.Chunk) error {
	batches := (len(chunks) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	for b := 0; b < batches; b++ {
		start := b * s.cfg.BatchSize
		end := min(start+s.cfg.BatchSize, len(chunks))

		if err := s.ingestBatch(ctx, documentID, b, chunks[start:end]); err != nil {
			s.rollback(ctx, documentID)
			logger.Error("document: ingestion failed", "document_id", documentID, "batch", b+1, "batches", batches, "error", err)
			return &IngestionError{DocumentID: documentID, Batch: b, Cause: err}
		}
		logger.Debug("document: batch stored", "document_id", documentID, "batch", b+1, "batches", batches)
	}
	return nil
}

func (s *DocumentService) ingestBatch(ctx context.Context, documentID string, batch int, chunks []chunker.Chunk) error {
	if batch > 0 && s.cfg.Throttle != nil {
		if err := s.cfg.Throttle.Wait(ctx); err != nil {
			return err
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata failed: %w", err)
		}
		if s.cfg.Dimensions > 0 && len(vectors[i]) != s.cfg.Dimensions {
			return ai.NewIntegrityError("embedding", "chunk %d has %d dimensions, want %d", c.Index, len(vectors[i]), s.cfg.Dimensions)
		}
		vec := pgvector.NewVector(vectors[i])
		rows[i] = model.DocumentChunk{
			DocumentID:   documentID,
			ChunkIndex:   c.Index,
			Content:      c.Content,
			SectionTitle: c.SectionTitle,
			ChunkType:    string(c.Metadata.Common().Type),
			Metadata:     meta,
			Embedding:    &vec,
		}
	}
	return s.store.InsertChunks(ctx, rows)
}

// rollback runs detached from ctx so a cancelled request still cleans up.
func (s *DocumentService) rollback(ctx context.Context, documentID string) {
	if _, err := s.store.Delete(context.WithoutCancel(ctx), documentID); err != nil {
		logger.Error("document: rollback failed", "document_id", documentID, "error", err)
	}
}

func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	return s.store.List(ctx)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrDocumentNotFound
	}
	doc, err := s.store.GetWithChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrDocumentNotFound
	}
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrDocumentNotFound
	}
	logger.Info("document: deleted", "document_id", id)
	return nil
}

func (s *DocumentService) Stats(ctx context.Context) (*repository.DocumentStats, error) {
	return s.store.Stats(ctx)
}
