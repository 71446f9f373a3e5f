package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

func TestRetrieveUsesCacheOnRepeat(t *testing.T) {
	embedder := &countingEmbedder{}
	store := &fakeStore{neighbors: poolOf(0.9, 0.7)}
	store.neighbors[1].Chunk.DocumentID = "other"
	r := NewRetriever(embedder, NewIndex(store, DefaultSearchPolicy()), NewRetrievalCache(time.Minute, nil), false)

	first, err := r.Retrieve(context.Background(), "how do I auth?", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.True(t, first.HasContext)
	assert.Equal(t, 2, first.ChunkCount)
	assert.Equal(t, 2, first.DocumentCount)
	assert.InDelta(t, 80.0, first.Confidence, 1e-6)

	second, err := r.Retrieve(context.Background(), "how do I auth?", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 1, store.calls)
}

func TestRetrieveWithoutResults(t *testing.T) {
	r := NewRetriever(&countingEmbedder{}, NewIndex(&fakeStore{}, DefaultSearchPolicy()), nil, false)

	got, err := r.Retrieve(context.Background(), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, got.HasContext)
	assert.Zero(t, got.Confidence)
	assert.Zero(t, got.DocumentCount)
}

func TestRetrieveWrapsEmbeddingFailure(t *testing.T) {
	boom := errors.New("boom")
	store := &fakeStore{}
	r := NewRetriever(&countingEmbedder{err: boom}, NewIndex(store, DefaultSearchPolicy()), nil, false)

	_, err := r.Retrieve(context.Background(), "q", SearchOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.calls)
}

func TestRetrieveConfidenceIsCapped(t *testing.T) {
	store := &fakeStore{neighbors: poolOf(0.99, 0.98)}
	r := NewRetriever(&countingEmbedder{}, NewIndex(store, DefaultSearchPolicy()), nil, true)

	got, err := r.Retrieve(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Confidence, 100.0)
	assert.InDelta(t, 100.0, got.Confidence, 1e-6)
}
