package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// Registry is the model registry surface the gateway needs. Implemented by
// services.RegistryService.
type Registry interface {
	Sync(ctx context.Context, provider string, discovered []models.ModelInfo) error
	Select(ctx context.Context) (*models.ModelInfo, error)
	RecordUsage(ctx context.Context, name string) error
}

// Factory builds per-execution gateways. It owns the provider clients and
// the model list cache: a provider's discovery is reused until the cache TTL
// elapses, so back-to-back executions don't hammer the model list endpoints.
type Factory struct {
	providers []Provider
	registry  Registry
	cacheTTL  time.Duration
	defTemp   float64

	mu       sync.Mutex
	lastSync map[string]time.Time
}

// NewFactory creates a gateway factory over the given providers, in
// selection preference order.
func NewFactory(providers []Provider, registry Registry, cfg config.LLMConfig) *Factory {
	return &Factory{
		providers: providers,
		registry:  registry,
		cacheTTL:  cfg.ModelCacheTTL,
		defTemp:   cfg.DefaultTemperature,
		lastSync:  make(map[string]time.Time),
	}
}

// BuildProviders constructs provider clients from configuration, in the
// configured order.
func BuildProviders(ctx context.Context, cfg config.LLMConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		pc := cfg.Providers[name]
		if !pc.IsEnabled() {
			slog.Info("Provider disabled by configuration", "provider", name)
			continue
		}
		apiKey := ""
		if pc.APIKeyEnv != "" {
			apiKey = os.Getenv(pc.APIKeyEnv)
		}
		switch pc.Type {
		case "openai":
			providers = append(providers, NewOpenAIProvider(name, pc.BaseURL, apiKey, cfg.RequestTimeout))
		case "ollama":
			providers = append(providers, NewOllamaProvider(name, pc.BaseURL, cfg.RequestTimeout))
		case "gemini":
			p, err := NewGeminiProvider(ctx, name, apiKey)
			if err != nil {
				slog.Warn("Skipping gemini provider", "provider", name, "error", err)
				continue
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", name, pc.Type)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable LLM provider configured")
	}
	return providers, nil
}

// SyncRegistry refreshes the registry from every provider whose model list
// cache has expired. A provider failing discovery only loses its own models.
func (f *Factory) SyncRegistry(ctx context.Context, force bool) {
	now := time.Now()
	for _, provider := range f.providers {
		f.mu.Lock()
		fresh := !force && now.Sub(f.lastSync[provider.Name()]) < f.cacheTTL
		f.mu.Unlock()
		if fresh {
			continue
		}

		discovered, err := provider.ListModels(ctx)
		if err != nil {
			slog.Warn("Model discovery failed", "provider", provider.Name(), "error", err)
			continue
		}
		if err := f.registry.Sync(ctx, provider.Name(), discovered); err != nil {
			slog.Error("Registry sync failed", "provider", provider.Name(), "error", err)
			continue
		}

		f.mu.Lock()
		f.lastSync[provider.Name()] = now
		f.mu.Unlock()
	}
}

// NewGateway selects a model and freezes it into a Gateway. All calls of one
// prompt execution go through the same model; the next execution selects
// again.
func (f *Factory) NewGateway(ctx context.Context) (*Gateway, error) {
	f.SyncRegistry(ctx, false)

	model, err := f.registry.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoModelAvailable, err)
	}

	var provider Provider
	for _, p := range f.providers {
		if p.Name() == model.Provider {
			provider = p
			break
		}
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: model %s belongs to unconfigured provider %s",
			ErrNoModelAvailable, model.Name, model.Provider)
	}

	slog.Debug("Gateway created", "model", model.Name, "provider", model.Provider)
	return &Gateway{
		provider: provider,
		model:    model,
		registry: f.registry,
		defTemp:  f.defTemp,
	}, nil
}

// Gateway executes model calls against one frozen model selection.
type Gateway struct {
	provider Provider
	model    *models.ModelInfo
	registry Registry
	defTemp  float64
}

// Model returns the frozen model selection.
func (g *Gateway) Model() *models.ModelInfo {
	return g.model
}

// Complete runs a single-turn generation and normalizes the output.
func (g *Gateway) Complete(ctx context.Context, system, prompt string) (string, Usage, error) {
	resp, err := g.provider.Complete(ctx, CompletionRequest{
		Model:       g.model.Name,
		System:      system,
		Prompt:      prompt,
		Temperature: g.temperature(),
		MaxTokens:   g.model.MaxTokens,
	})
	return g.finish(ctx, resp, err)
}

// Chat runs a multi-turn generation and normalizes the output.
func (g *Gateway) Chat(ctx context.Context, messages []ChatMessage) (string, Usage, error) {
	resp, err := g.provider.Chat(ctx, ChatRequest{
		Model:       g.model.Name,
		Messages:    messages,
		Temperature: g.temperature(),
		MaxTokens:   g.model.MaxTokens,
	})
	return g.finish(ctx, resp, err)
}

// Stream passes a streaming generation through. Usage is recorded when the
// terminal chunk arrives.
func (g *Gateway) Stream(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	chunks, err := g.provider.Stream(ctx, ChatRequest{
		Model:       g.model.Name,
		Messages:    messages,
		Temperature: g.temperature(),
		MaxTokens:   g.model.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for chunk := range chunks {
			if chunk.Done {
				g.recordUsage(ctx)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *Gateway) finish(ctx context.Context, resp *Response, err error) (string, Usage, error) {
	if err != nil {
		return "", Usage{}, err
	}
	content, err := Normalize(resp.Content)
	if err != nil {
		return "", resp.Usage, fmt.Errorf("model %s: %w", g.model.Name, err)
	}
	g.recordUsage(ctx)
	return content, resp.Usage, nil
}

func (g *Gateway) recordUsage(ctx context.Context) {
	if err := g.registry.RecordUsage(ctx, g.model.Name); err != nil {
		slog.Warn("Failed to record model usage", "model", g.model.Name, "error", err)
	}
}

func (g *Gateway) temperature() float64 {
	if g.model.Temperature != 0 {
		return g.model.Temperature
	}
	return g.defTemp
}

// IsNoModel reports whether err means the registry had nothing to offer.
func IsNoModel(err error) bool {
	return errors.Is(err, ErrNoModelAvailable)
}
