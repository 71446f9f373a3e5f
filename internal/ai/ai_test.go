package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "be brief", body.System)
		assert.Equal(t, 4096, body.MaxTokens)
		require.Len(t, body.Messages, 1)

		fmt.Fprint(w, `{"model":"claude-test","content":[{"type":"text","text":"hello"}],"usage":{"input_tokens":12,"output_tokens":3}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL, APIKey: "test-key"})
	got, err := client.Generate(context.Background(), GenerateRequest{
		System:   "be brief",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3}, got.Usage)
}

func TestAnthropicGenerateNonTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"type":"tool_use"}],"usage":{}}`)
	}))
	defer srv.Close()

	got, err := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL}).Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Empty(t, got.Text)
}

func TestAnthropicErrorMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:    ErrProviderAuth,
		http.StatusTooManyRequests: ErrProviderRateLimited,
		StatusOverloaded:           ErrProviderUnavailable,
		http.StatusBadGateway:      ErrProviderUnavailable,
		http.StatusBadRequest:      ErrProviderRequest,
	}
	for status, want := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				fmt.Fprint(w, `{"type":"error"}`)
			}))
			defer srv.Close()

			_, err := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL}).Generate(context.Background(), GenerateRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, want)

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, status, perr.StatusCode)
		})
	}
}

func TestAnthropicStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"model\":\"m\",\"usage\":{\"input_tokens\":9}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":2}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	var fragments []string
	got, err := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL}).Stream(context.Background(), GenerateRequest{}, func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hello", got.Text)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 2}, got.Usage)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	_, err := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL}).Stream(context.Background(), GenerateRequest{}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.Input)
		assert.Equal(t, 3, body.Dimensions)

		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Dimensions: 3})
	got, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, got)
}

func TestEmbedInvalidKeyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAICompatibleClient(OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrProviderAuth)
}

func TestEmbedMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":4,"embedding":[1]}]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAICompatibleClient(OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrProviderIntegrity)
}

func TestOpenAIChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []ChatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		fmt.Fprint(w, `{"model":"gpt","choices":[{"message":{"content":"answer"}}],"usage":{"prompt_tokens":5,"completion_tokens":1}}`)
	}))
	defer srv.Close()

	got, err := NewOpenAICompatibleClient(OpenAIConfig{BaseURL: srv.URL}).Generate(context.Background(), GenerateRequest{
		System:   "sys",
		Messages: []ChatMessage{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", got.Text)
	assert.Equal(t, 5, got.Usage.InputTokens)
}

type scriptedGenerator struct {
	calls int
	err   error
}

func (g *scriptedGenerator) Generate(context.Context, GenerateRequest) (*Completion, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &Completion{Text: "ok"}, nil
}

func (g *scriptedGenerator) Stream(ctx context.Context, req GenerateRequest, _ func(string) error) (*Completion, error) {
	return g.Generate(ctx, req)
}

func TestBreakerOpensOnUnavailable(t *testing.T) {
	inner := &scriptedGenerator{err: &ProviderError{Provider: "x", Kind: ErrProviderUnavailable}}
	gen := NewBreakerGenerator("test", inner)

	for i := 0; i < 5; i++ {
		_, err := gen.Generate(context.Background(), GenerateRequest{})
		require.ErrorIs(t, err, ErrProviderUnavailable)
	}
	_, err := gen.Generate(context.Background(), GenerateRequest{})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerIgnoresAuthFailures(t *testing.T) {
	inner := &scriptedGenerator{err: &ProviderError{Provider: "x", Kind: ErrProviderAuth}}
	gen := NewBreakerGenerator("test", inner)

	for i := 0; i < 10; i++ {
		_, err := gen.Generate(context.Background(), GenerateRequest{})
		require.ErrorIs(t, err, ErrProviderAuth)
	}
	assert.Equal(t, 10, inner.calls)
}
