package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
	"docchat/internal/chunker"
	"docchat/internal/model"
)

func words(prefix string, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(out, " ")
}

func twoSectionMarkdown() []byte {
	return []byte("## Install\n\n" + words("install", 600) + "\n\n## Configure\n\n" + words("configure", 600) + "\n")
}

func TestDetectType(t *testing.T) {
	cases := map[string]model.DocumentType{
		"guide.md":       model.DocumentMarkdown,
		"GUIDE.MARKDOWN": model.DocumentMarkdown,
		"api.yaml":       model.DocumentOpenAPI,
		"api.yml":        model.DocumentOpenAPI,
		"api.json":       model.DocumentOpenAPI,
		"manual.pdf":     model.DocumentPDF,
	}
	for name, want := range cases {
		got, err := DetectType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectType("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUploadMarkdownStoresOrderedChunks(t *testing.T) {
	store := newMemoryDocuments()
	throttle := &countingThrottle{}
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{BatchSize: 3, Throttle: throttle})

	res, err := svc.Upload(context.Background(), UploadInput{FileName: "setup-guide.md", Data: twoSectionMarkdown()})
	require.NoError(t, err)

	assert.Equal(t, 4, res.ChunkCount)
	assert.Equal(t, "setup-guide", res.Document.Title)
	assert.Equal(t, model.DocumentMarkdown, res.Document.Type)
	assert.Equal(t, 1, throttle.waits, "4 chunks in batches of 3 wait once")

	doc, err := svc.Get(context.Background(), res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.ChunkCount)
	require.Len(t, doc.Chunks, 4)
	for i, c := range doc.Chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, len(strings.Fields(c.Content)), chunker.DefaultMaxWords+6)
		assert.NotNil(t, c.Embedding)
		assert.Equal(t, "markdown", c.ChunkType)
		assert.Contains(t, string(c.Metadata), `"fileName":"setup-guide.md"`)
	}
	assert.Equal(t, "Install", doc.Chunks[1].SectionTitle)
	assert.Equal(t, "Configure", doc.Chunks[2].SectionTitle)
}

func TestUploadRollsBackWhenSecondBatchFails(t *testing.T) {
	store := newMemoryDocuments()
	cause := &ai.ProviderError{Provider: "openai", StatusCode: 503, Kind: ai.ErrProviderUnavailable}
	embedder := &scriptedEmbedder{failOn: 2, err: cause}
	svc := NewDocumentService(store, embedder, nil, nil, DocumentServiceConfig{BatchSize: 2})

	_, err := svc.Upload(context.Background(), UploadInput{FileName: "guide.md", Data: twoSectionMarkdown()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestionFailed)
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, 1, ingestErr.Batch)

	assert.Equal(t, 2, embedder.calls)
	assert.Equal(t, []string{ingestErr.DocumentID}, store.deleted)
	docs, _ := store.List(context.Background())
	assert.Empty(t, docs)
	assert.Empty(t, store.chunks)
}

func TestUploadRollsBackWhenStoreFails(t *testing.T) {
	store := newMemoryDocuments()
	store.failNext = errBoom
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{})

	_, err := svc.Upload(context.Background(), UploadInput{FileName: "guide.md", Data: []byte("# Title\n\nhello world")})
	assert.ErrorIs(t, err, ErrIngestionFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, store.deleted, 1)
}

func TestUploadRejectsWrongEmbeddingWidth(t *testing.T) {
	store := newMemoryDocuments()
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{Dimensions: 3})

	_, err := svc.Upload(context.Background(), UploadInput{FileName: "guide.md", Data: []byte("# Title\n\nhello world")})
	assert.ErrorIs(t, err, ErrIngestionFailed)
	assert.ErrorIs(t, err, ai.ErrProviderIntegrity)
	assert.Contains(t, err.Error(), "has 2 dimensions, want 3")
	assert.Len(t, store.deleted, 1)
	assert.Empty(t, store.chunks)
}

func TestUploadRejectsBadInput(t *testing.T) {
	svc := NewDocumentService(newMemoryDocuments(), &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{MaxUploadBytes: 16})

	_, err := svc.Upload(context.Background(), UploadInput{FileName: "notes.txt", Data: []byte("hi")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.Upload(context.Background(), UploadInput{FileName: "empty.md", Data: nil})
	assert.ErrorIs(t, err, ErrDocumentEmpty)

	_, err = svc.Upload(context.Background(), UploadInput{FileName: "blank.md", Data: []byte(" \n\t ")})
	assert.ErrorIs(t, err, ErrDocumentEmpty)

	_, err = svc.Upload(context.Background(), UploadInput{FileName: "big.md", Data: []byte(strings.Repeat("x", 17))})
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	_, err = svc.Upload(context.Background(), UploadInput{FileName: "bad.md", Data: []byte{0xff, 0xfe, 0xfd}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Upload(context.Background(), UploadInput{FileName: "  ", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadMalformedOpenAPIStillIngests(t *testing.T) {
	store := newMemoryDocuments()
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{})

	res, err := svc.Upload(context.Background(), UploadInput{FileName: "broken.yaml", Data: []byte("openapi: [unterminated\n  paths: {")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)

	doc, err := svc.Get(context.Background(), res.Document.ID)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Chunks[0].Metadata), `"parseError"`)
}

func TestDeleteAndGetMissingDocument(t *testing.T) {
	store := newMemoryDocuments()
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{})

	res, err := svc.Upload(context.Background(), UploadInput{FileName: "a.md", Data: []byte("hello")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), res.Document.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), res.Document.ID), ErrDocumentNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "not-a-uuid"), ErrDocumentNotFound)

	_, err = svc.Get(context.Background(), res.Document.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentStats(t *testing.T) {
	store := newMemoryDocuments()
	svc := NewDocumentService(store, &scriptedEmbedder{}, nil, nil, DocumentServiceConfig{})
	_, err := svc.Upload(context.Background(), UploadInput{FileName: "a.md", Data: twoSectionMarkdown()})
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), UploadInput{FileName: "b.md", Data: []byte("short doc")})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Documents)
	assert.EqualValues(t, 5, stats.Chunks)
	assert.InDelta(t, 2.5, stats.AvgChunksPerDocument, 1e-9)
}
