package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// OllamaProvider talks to an Ollama server over its native REST API. The
// same client serves the local daemon and a remote GPU box; only the base
// URL differs.
type OllamaProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for an Ollama endpoint.
func NewOllamaProvider(name, baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return p.name }

// --- wire structs ---

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []ChatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string      `json:"model"`
	Message         ChatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Details struct {
			Family            string `json:"family"`
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
		} `json:"details"`
	} `json:"models"`
}

// Complete implements Provider via /api/generate.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*Response, error) {
	body := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: buildOllamaOptions(req.Temperature, req.MaxTokens),
	}

	var parsed ollamaGenerateResponse
	if err := p.post(ctx, "/api/generate", body, &parsed); err != nil {
		return nil, err
	}
	return &Response{
		Content: parsed.Response,
		Model:   parsed.Model,
		Usage:   ollamaUsage(parsed.PromptEvalCount, parsed.EvalCount),
	}, nil
}

// Chat implements Provider via /api/chat.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  buildOllamaOptions(req.Temperature, req.MaxTokens),
	}

	var parsed ollamaChatResponse
	if err := p.post(ctx, "/api/chat", body, &parsed); err != nil {
		return nil, err
	}
	return &Response{
		Content: parsed.Message.Content,
		Model:   parsed.Model,
		Usage:   ollamaUsage(parsed.PromptEvalCount, parsed.EvalCount),
	}, nil
}

// Stream implements Provider; Ollama streams newline-delimited JSON.
func (p *OllamaProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  buildOllamaOptions(req.Temperature, req.MaxTokens),
	}

	resp, err := p.request(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("%s: malformed stream chunk: %w", p.name, err)}
				return
			}
			if chunk.Done {
				out <- StreamChunk{Done: true, Usage: ollamaUsage(chunk.PromptEvalCount, chunk.EvalCount)}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- StreamChunk{Delta: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("%s: stream read failed: %w", p.name, err)}
		}
	}()
	return out, nil
}

// ListModels implements Provider via /api/tags.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", p.name, err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: model listing failed: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%s: failed to decode model list: %w", p.name, err)
	}

	result := make([]models.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		result = append(result, models.ModelInfo{
			Name:          m.Name,
			Provider:      p.name,
			Size:          m.Size,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
			Available:     true,
		})
	}
	return result, nil
}

func buildOllamaOptions(temperature float64, maxTokens int) *ollamaOptions {
	if temperature == 0 && maxTokens == 0 {
		return nil
	}
	return &ollamaOptions{Temperature: temperature, NumPredict: maxTokens}
}

func ollamaUsage(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

func (p *OllamaProvider) post(ctx context.Context, path string, body, dst any) error {
	resp, err := p.request(ctx, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", p.name, err)
	}
	return nil
}

func (p *OllamaProvider) request(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, p.apiError(resp)
	}
	return resp, nil
}

func (p *OllamaProvider) apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s (HTTP %d)", p.name, apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s: HTTP %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(data)))
}
