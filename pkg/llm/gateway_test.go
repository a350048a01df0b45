package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

type fakeProvider struct {
	name      string
	content   string
	listCalls int
	models    []models.ModelInfo
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req CompletionRequest) (*Response, error) {
	return &Response{Content: f.content, Model: req.Model, Usage: Usage{TotalTokens: 7}}, nil
}

func (f *fakeProvider) Chat(_ context.Context, req ChatRequest) (*Response, error) {
	return &Response{Content: f.content, Model: req.Model}, nil
}

func (f *fakeProvider) Stream(context.Context, ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Delta: f.content}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) ListModels(context.Context) ([]models.ModelInfo, error) {
	f.listCalls++
	return f.models, nil
}

type fakeRegistry struct {
	mu       sync.Mutex
	synced   map[string][]models.ModelInfo
	selected *models.ModelInfo
	usage    map[string]int
}

func newFakeRegistry(selected *models.ModelInfo) *fakeRegistry {
	return &fakeRegistry{
		synced:   make(map[string][]models.ModelInfo),
		selected: selected,
		usage:    make(map[string]int),
	}
}

func (f *fakeRegistry) Sync(_ context.Context, provider string, discovered []models.ModelInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced[provider] = discovered
	return nil
}

func (f *fakeRegistry) Select(context.Context) (*models.ModelInfo, error) {
	if f.selected == nil {
		return nil, errors.New("registry empty")
	}
	return f.selected, nil
}

func (f *fakeRegistry) RecordUsage(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[name]++
	return nil
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{ModelCacheTTL: 5 * time.Minute, DefaultTemperature: 0.7}
}

func TestGatewaySelectionFrozenAndUsageRecorded(t *testing.T) {
	provider := &fakeProvider{
		name:    "ollama-local",
		content: "odpověď",
		models:  []models.ModelInfo{{Name: "llama3.1:8b"}},
	}
	registry := newFakeRegistry(&models.ModelInfo{Name: "llama3.1:8b", Provider: "ollama-local"})
	factory := NewFactory([]Provider{provider}, registry, testLLMConfig())

	gw, err := factory.NewGateway(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", gw.Model().Name)

	content, usage, err := gw.Complete(context.Background(), "", "otázka")
	require.NoError(t, err)
	assert.Equal(t, "odpověď", content)
	assert.Equal(t, 7, usage.TotalTokens)
	assert.Equal(t, 1, registry.usage["llama3.1:8b"])
}

func TestGatewayEmptyResponseIsError(t *testing.T) {
	provider := &fakeProvider{name: "p", content: "   "}
	registry := newFakeRegistry(&models.ModelInfo{Name: "m", Provider: "p"})
	factory := NewFactory([]Provider{provider}, registry, testLLMConfig())

	gw, err := factory.NewGateway(context.Background())
	require.NoError(t, err)

	_, _, err = gw.Complete(context.Background(), "", "otázka")
	assert.ErrorIs(t, err, ErrEmptyResponse)
	// Failed calls don't count as usage
	assert.Equal(t, 0, registry.usage["m"])
}

func TestFactoryNoModelAvailable(t *testing.T) {
	provider := &fakeProvider{name: "p"}
	factory := NewFactory([]Provider{provider}, newFakeRegistry(nil), testLLMConfig())

	_, err := factory.NewGateway(context.Background())
	assert.True(t, IsNoModel(err))
}

func TestFactoryUnknownProviderForModel(t *testing.T) {
	provider := &fakeProvider{name: "p"}
	registry := newFakeRegistry(&models.ModelInfo{Name: "m", Provider: "other"})
	factory := NewFactory([]Provider{provider}, registry, testLLMConfig())

	_, err := factory.NewGateway(context.Background())
	assert.True(t, IsNoModel(err))
}

func TestModelListCacheRespectsTTL(t *testing.T) {
	provider := &fakeProvider{name: "p", models: []models.ModelInfo{{Name: "m"}}}
	registry := newFakeRegistry(&models.ModelInfo{Name: "m", Provider: "p"})
	factory := NewFactory([]Provider{provider}, registry, testLLMConfig())

	factory.SyncRegistry(context.Background(), false)
	factory.SyncRegistry(context.Background(), false)
	assert.Equal(t, 1, provider.listCalls, "second sync within TTL must reuse the cache")

	factory.SyncRegistry(context.Background(), true)
	assert.Equal(t, 2, provider.listCalls, "forced sync bypasses the cache")
}

func TestDefaultTemperatureApplied(t *testing.T) {
	gw := &Gateway{
		model:   &models.ModelInfo{Name: "m"},
		defTemp: 0.7,
	}
	assert.Equal(t, 0.7, gw.temperature())

	gw.model.Temperature = 0.2
	assert.Equal(t, 0.2, gw.temperature())
}
