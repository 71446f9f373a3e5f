package ai

import (
	"context"
	"encoding/json"
	"io"
)

// Embed returns one vector per input, ordered by the provider-reported index.
// Callers own batching and the count check.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"model": c.cfg.Model,
		"input": texts,
	}
	if c.cfg.Dimensions > 0 {
		reqBody["dimensions"] = c.cfg.Dimensions
	}

	resp, err := c.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(openAIProvider, err)
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, integrityError(openAIProvider, "parse embedding response: %v", err)
	}

	result := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		idx := item.Index
		if idx < 0 || idx >= len(result) {
			return nil, integrityError(openAIProvider, "embedding index %d out of range", idx)
		}
		if result[idx] != nil {
			return nil, integrityError(openAIProvider, "duplicate embedding index %d", idx)
		}
		if len(item.Embedding) == 0 {
			return nil, integrityError(openAIProvider, "empty embedding at position %d", i)
		}
		result[idx] = item.Embedding
	}
	return result, nil
}
