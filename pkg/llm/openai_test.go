package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req oaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Shrnutí dokumentu."}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "test-key", 5*time.Second)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Model:  "gpt-4o-mini",
		System: "Jsi asistent.",
		Prompt: "Shrň dokument.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Shrnutí dokumentu.", resp.Content)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestOpenAIAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Invalid API key", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "bad-key", 5*time.Second)
	_, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "m", "choices": []any{}})
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "", 5*time.Second)
	_, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "gpt-4o"}, {"id": "gpt-4o-mini"}},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "", 5*time.Second)
	list, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "gpt-4o", list[0].Name)
	assert.Equal(t, "openai", list[0].Provider)
	assert.True(t, list[0].Available)
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Ahoj"}}]}`,
			`{"choices":[{"delta":{"content":" světe"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "", 5*time.Second)
	chunks, err := p.Stream(context.Background(), ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "pozdrav"}},
	})
	require.NoError(t, err)

	var text string
	var done bool
	var usage Usage
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			done = true
			usage = chunk.Usage
			continue
		}
		text += chunk.Delta
	}
	assert.True(t, done)
	assert.Equal(t, "Ahoj světe", text)
	assert.Equal(t, 5, usage.TotalTokens)
}
