package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
)

type fakeProvider struct {
	batches []int
	dropOne bool
	err     error
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.batches = append(p.batches, len(texts))
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		n, _ := strconv.Atoi(strings.TrimPrefix(t, "t"))
		out = append(out, []float32{float32(n)})
	}
	if p.dropOne {
		out = out[:len(out)-1]
	}
	return out, nil
}

type countingThrottle struct{ waits int }

func (c *countingThrottle) Wait(context.Context) error {
	c.waits++
	return nil
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestEmbedAllPreservesOrderAcrossBatches(t *testing.T) {
	provider := &fakeProvider{}
	throttle := &countingThrottle{}
	e := NewEmbedder(provider, 100, throttle)

	got, err := e.EmbedAll(context.Background(), inputs(250))
	require.NoError(t, err)
	require.Len(t, got, 250)
	for i, v := range got {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, []int{100, 100, 50}, provider.batches)
	assert.Equal(t, 2, throttle.waits)
}

func TestEmbedAllRejectsBlankInput(t *testing.T) {
	provider := &fakeProvider{}
	texts := inputs(5)
	texts[3] = "   "

	_, err := NewEmbedder(provider, 100, nil).EmbedAll(context.Background(), texts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 3, verr.Index)
	assert.Empty(t, provider.batches)
}

func TestEmbedAllCountMismatchIsIntegrityError(t *testing.T) {
	provider := &fakeProvider{dropOne: true}

	_, err := NewEmbedder(provider, 100, nil).EmbedAll(context.Background(), inputs(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrProviderIntegrity)
	assert.Contains(t, err.Error(), "expected 3 embeddings but got 2")
}

func TestEmbedAllPropagatesProviderKind(t *testing.T) {
	provider := &fakeProvider{err: &ai.ProviderError{Provider: "openai", StatusCode: 429, Kind: ai.ErrProviderRateLimited}}

	_, err := NewEmbedder(provider, 100, nil).EmbedAll(context.Background(), inputs(2))
	assert.ErrorIs(t, err, ai.ErrProviderRateLimited)
}

func TestEmbedQuery(t *testing.T) {
	got, err := NewEmbedder(&fakeProvider{}, 0, nil).EmbedQuery(context.Background(), "t7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, got)
}

type skewedProvider struct{ calls int }

// Embed returns one vector too few for the first batch and one too many for the second.
func (p *skewedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	n := len(texts) - 1
	if p.calls > 1 {
		n = len(texts) + 1
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(p.calls*1000 + i)}
	}
	return out, nil
}

func TestEmbedAllChecksEachBatch(t *testing.T) {
	provider := &skewedProvider{}

	got, err := NewEmbedder(provider, 2, nil).EmbedAll(context.Background(), inputs(4))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ai.ErrProviderIntegrity)
	assert.Contains(t, err.Error(), "batch 0-2 expected 2 embeddings but got 1")
	assert.Equal(t, 1, provider.calls)
}
