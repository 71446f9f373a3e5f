package rag

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docchat/internal/logger"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error)
}

type RetrievedContext struct {
	Results       []SearchResult
	HasContext    bool
	Confidence    float64
	DocumentCount int
	ChunkCount    int
	CacheHit      bool
}

// Retriever runs query embedding and similarity search behind the cache.
type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	cache    *RetrievalCache
	rerank   bool
	tracer   trace.Tracer
}

func NewRetriever(embedder QueryEmbedder, index Searcher, cache *RetrievalCache, rerank bool) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		cache:    cache,
		rerank:   rerank,
		tracer:   otel.Tracer("docchat/rag"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts SearchOptions) (*RetrievedContext, error) {
	ctx, span := r.tracer.Start(ctx, "rag.retrieve")
	defer span.End()
	started := time.Now()

	key := CacheKey(query, opts)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("rag.cache_hit", true), attribute.Int("rag.results", len(cached)))
			logger.Debug("rag: cache hit", "results", len(cached))
			rc := summarize(cached)
			rc.CacheHit = true
			return rc, nil
		}
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	results, err := r.index.Search(ctx, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if r.rerank && len(results) > 1 {
		results = Rerank(query, results)
	}
	if r.cache != nil {
		r.cache.Set(key, results)
	}

	span.SetAttributes(attribute.Bool("rag.cache_hit", false), attribute.Int("rag.results", len(results)))
	logger.Info("rag: retrieved chunks", "results", len(results), "elapsed_ms", time.Since(started).Milliseconds())
	return summarize(results), nil
}

func summarize(results []SearchResult) *RetrievedContext {
	docs := make(map[string]struct{})
	sum := 0.0
	for _, r := range results {
		docs[r.Chunk.DocumentID] = struct{}{}
		sum += r.Similarity
	}
	rc := &RetrievedContext{
		Results:       results,
		HasContext:    len(results) > 0,
		DocumentCount: len(docs),
		ChunkCount:    len(results),
	}
	if len(results) > 0 {
		rc.Confidence = min(sum/float64(len(results))*100, 100)
	}
	return rc
}
