// Package llm is the model gateway: provider clients (OpenAI-compatible,
// Ollama, Gemini), model selection against the registry, response
// normalization and usage tracking.
package llm

import (
	"context"
	"errors"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

var (
	// ErrEmptyResponse is returned when a provider answered with no usable text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNoModelAvailable is returned when the registry offers nothing to run on.
	ErrNoModelAvailable = errors.New("no model available")
)

// CompletionRequest is a single-turn generation request.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ChatMessage is one turn of a multi-turn request.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a multi-turn generation request.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting reported by a provider. Zero values mean
// the provider did not report.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// StreamChunk is one element of a streaming response. Exactly one of Delta,
// Done or Err is meaningful per chunk; Done carries the final usage.
type StreamChunk struct {
	Delta string
	Done  bool
	Usage Usage
	Err   error
}

// Provider is the capability surface every backend implements. Providers
// are stateless HTTP/SDK clients; model choice comes in with each request.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*Response, error)
	Chat(ctx context.Context, req ChatRequest) (*Response, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
}
