package rag

import (
	"sort"
	"strings"
)

const (
	keywordBoostWeight = 0.1
	earlyChunkBoost    = 0.05
	earlyChunkCutoff   = 5
)

// Rerank returns a rescored copy: a keyword boost proportional to the share of
// query words found in the chunk, plus a fixed boost for early chunks. Scores
// are capped at 1.
func Rerank(query string, results []SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	copy(out, results)

	queryWords := strings.Fields(strings.ToLower(query))
	for i := range out {
		score := out[i].Similarity
		if len(queryWords) > 0 {
			content := strings.ToLower(out[i].Chunk.Content)
			overlap := 0
			for _, w := range queryWords {
				if strings.Contains(content, w) {
					overlap++
				}
			}
			score += float64(overlap) / float64(len(queryWords)) * keywordBoostWeight
		}
		if out[i].Chunk.SequenceIndex < earlyChunkCutoff {
			score += earlyChunkBoost
		}
		out[i].Similarity = min(score, 1.0)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}
