package rag

import (
	"context"
	"fmt"
	"sort"
)

const (
	DefaultTopK        = 10
	DefaultThreshold   = 0.5
	DefaultRelaxBelow  = 3
	DefaultRelaxFactor = 0.8
)

type ChunkRef struct {
	ID            uint   `json:"id"`
	DocumentID    string `json:"documentId"`
	Content       string `json:"content"`
	SectionTitle  string `json:"section"`
	SequenceIndex int    `json:"chunkIndex"`
	ChunkType     string `json:"type"`
}

type SearchResult struct {
	Chunk         ChunkRef `json:"chunk"`
	Similarity    float64  `json:"similarity"`
	DocumentTitle string   `json:"documentTitle"`
	FileName      string   `json:"fileName"`
}

// Neighbor is a raw store hit ordered by cosine distance.
type Neighbor struct {
	Chunk         ChunkRef
	DocumentTitle string
	FileName      string
	Distance      float64
}

type Filter struct {
	DocumentType string `json:"documentType,omitempty"`
	DocumentID   string `json:"documentId,omitempty"`
}

// VectorStore returns up to limit chunks that have a vector, closest first.
type VectorStore interface {
	NearestChunks(ctx context.Context, vector []float32, limit int, filter Filter) ([]Neighbor, error)
}

// SearchOptions zero values fall back to the index policy.
type SearchOptions struct {
	TopK      int     `json:"topK,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Filter
}

type SearchPolicy struct {
	TopK        int
	Threshold   float64
	RelaxBelow  int
	RelaxFactor float64
}

func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{
		TopK:        DefaultTopK,
		Threshold:   DefaultThreshold,
		RelaxBelow:  DefaultRelaxBelow,
		RelaxFactor: DefaultRelaxFactor,
	}
}

type Index struct {
	store  VectorStore
	policy SearchPolicy
}

func NewIndex(store VectorStore, policy SearchPolicy) *Index {
	def := DefaultSearchPolicy()
	if policy.TopK <= 0 {
		policy.TopK = def.TopK
	}
	if policy.Threshold <= 0 {
		policy.Threshold = def.Threshold
	}
	if policy.RelaxBelow < 0 {
		policy.RelaxBelow = def.RelaxBelow
	}
	if policy.RelaxFactor <= 0 || policy.RelaxFactor > 1 {
		policy.RelaxFactor = def.RelaxFactor
	}
	return &Index{store: store, policy: policy}
}

func (x *Index) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = x.policy.TopK
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = x.policy.Threshold
	}

	neighbors, err := x.store.NearestChunks(ctx, vector, 2*topK, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("nearest chunks failed: %w", err)
	}

	pool := make([]SearchResult, len(neighbors))
	for i, n := range neighbors {
		pool[i] = SearchResult{
			Chunk:         n.Chunk,
			Similarity:    1 - n.Distance,
			DocumentTitle: n.DocumentTitle,
			FileName:      n.FileName,
		}
	}
	return x.selectResults(pool, topK, threshold), nil
}

// selectResults keeps up to topK results at or above threshold. When fewer
// than RelaxBelow survive, the threshold is scaled by RelaxFactor and the
// original pool is filtered again.
func (x *Index) selectResults(pool []SearchResult, topK int, threshold float64) []SearchResult {
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Similarity > pool[j].Similarity })

	results := filterAbove(pool, threshold, topK)
	if len(results) < x.policy.RelaxBelow && len(pool) > 0 {
		results = filterAbove(pool, threshold*x.policy.RelaxFactor, topK)
	}
	return results
}

func filterAbove(pool []SearchResult, threshold float64, limit int) []SearchResult {
	out := make([]SearchResult, 0, min(limit, len(pool)))
	for _, r := range pool {
		if len(out) == limit {
			break
		}
		if r.Similarity >= threshold {
			out = append(out, r)
		}
	}
	return out
}
