// Package rag holds the retrieval pipeline: batched embedding, similarity
// search with threshold relaxation, result caching and context assembly.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docchat/internal/ai"
	"docchat/internal/logger"
)

const DefaultMaxBatchSize = 100

var ErrInvalidInput = errors.New("invalid input")

// ValidationError identifies the offending input by position.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s at index %d", e.Reason, e.Index)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Throttle paces consecutive provider batches. *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// NewIntervalThrottle allows one batch per interval.
func NewIntervalThrottle(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

type Embedder struct {
	provider     EmbeddingProvider
	maxBatchSize int
	throttle     Throttle
}

func NewEmbedder(provider EmbeddingProvider, maxBatchSize int, throttle Throttle) *Embedder {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if throttle == nil {
		throttle = NewIntervalThrottle(0)
	}
	return &Embedder{provider: provider, maxBatchSize: maxBatchSize, throttle: throttle}
}

// EmbedAll returns exactly one vector per input, in input order.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Index: i, Reason: "empty text"}
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.maxBatchSize {
		end := min(start+e.maxBatchSize, len(texts))
		if start > 0 {
			if err := e.throttle.Wait(ctx); err != nil {
				return nil, fmt.Errorf("wait between embedding batches failed: %w", err)
			}
		}

		batch, err := e.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d failed: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, ai.NewIntegrityError("embedding", "batch %d-%d expected %d embeddings but got %d", start, end, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
		logger.Debug("rag: embedded batch", "from", start, "to", end, "total", len(texts))
	}

	if len(vectors) != len(texts) {
		return nil, ai.NewIntegrityError("embedding", "expected %d embeddings but got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, ai.NewIntegrityError("embedding", "empty embedding at index %d", i)
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
