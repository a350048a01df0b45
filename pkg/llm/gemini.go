package llm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// GeminiProvider serves Gemini models through the official SDK.
type GeminiProvider struct {
	name   string
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider. The API key comes from the
// configured environment variable.
func NewGeminiProvider(ctx context.Context, name, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini provider %s: API key is required", name)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{name: name, client: client}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return p.name }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*Response, error) {
	cfg := p.generateConfig(req.System, req.Temperature, req.MaxTokens)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: generation failed: %w", p.name, err)
	}
	return p.toResponse(req.Model, resp)
}

// Chat implements Provider.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	system, contents := p.toContents(req.Messages)
	cfg := p.generateConfig(system, req.Temperature, req.MaxTokens)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: generation failed: %w", p.name, err)
	}
	return p.toResponse(req.Model, resp)
}

// Stream implements Provider.
func (p *GeminiProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	system, contents := p.toContents(req.Messages)
	cfg := p.generateConfig(system, req.Temperature, req.MaxTokens)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var usage Usage
		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				out <- StreamChunk{Err: fmt.Errorf("%s: stream failed: %w", p.name, err)}
				return
			}
			if resp.UsageMetadata != nil {
				usage = geminiUsage(resp.UsageMetadata)
			}
			if delta := resp.Text(); delta != "" {
				select {
				case out <- StreamChunk{Delta: delta}:
				case <-ctx.Done():
					return
				}
			}
		}
		out <- StreamChunk{Done: true, Usage: usage}
	}()
	return out, nil
}

// ListModels implements Provider, keeping only generation-capable models.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	result := []models.ModelInfo{}
	for model, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%s: model listing failed: %w", p.name, err)
		}
		if !slices.Contains(model.SupportedActions, "generateContent") {
			continue
		}
		result = append(result, models.ModelInfo{
			Name:          strings.TrimPrefix(model.Name, "models/"),
			DisplayName:   model.DisplayName,
			Provider:      p.name,
			ContextWindow: int(model.InputTokenLimit),
			MaxTokens:     int(model.OutputTokenLimit),
			Available:     true,
		})
	}
	return result, nil
}

func (p *GeminiProvider) generateConfig(system string, temperature float64, maxTokens int) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(temperature))
	}
	if maxTokens != 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	return cfg
}

// toContents maps chat messages to Gemini contents. System turns are pulled
// out into the system instruction; assistant turns map to the model role.
func (p *GeminiProvider) toContents(messages []ChatMessage) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func (p *GeminiProvider) toResponse(model string, resp *genai.GenerateContentResponse) (*Response, error) {
	text := resp.Text()
	result := &Response{Content: text, Model: model}
	if resp.UsageMetadata != nil {
		result.Usage = geminiUsage(resp.UsageMetadata)
	}
	return result, nil
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) Usage {
	return Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}
