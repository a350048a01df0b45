package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.MaxConcurrentProcessing)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 0.8, cfg.Chunking.SafeFraction)
	assert.Equal(t, 500, cfg.Chunking.OverlapChars)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wizard.yaml")
	yaml := `
queue:
  max_concurrent_processing: 2
chunking:
  overlap_chars: 250
llm:
  providers:
    openai:
      type: openai
      api_key_env: OPENAI_API_KEY
  provider_order: [openai]
  preferred_models: [gpt-4o-mini]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Queue.MaxConcurrentProcessing)
	assert.Equal(t, 250, cfg.Chunking.OverlapChars)
	assert.Contains(t, cfg.LLM.Providers, "openai")
	assert.Equal(t, []string{"gpt-4o-mini"}, cfg.LLM.PreferredModels)
	// Untouched sections keep defaults
	assert.Equal(t, time.Hour, cfg.Session.TTL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_TTL_SECONDS", "120")
	t.Setenv("MAX_CONCURRENT_PROCESSING", "3")
	t.Setenv("MODEL_CACHE_TTL_MS", "60000")
	t.Setenv("OLLAMA_REMOTE_URL", "http://gpu-box:11434")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrentProcessing)
	assert.Equal(t, time.Minute, cfg.LLM.ModelCacheTTL)
	require.Contains(t, cfg.LLM.Providers, "ollama-remote")
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.Providers["ollama-remote"].BaseURL)
	assert.Contains(t, cfg.LLM.ProviderOrder, "ollama-remote")
}

func TestEnvOverridesMalformedIgnored(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_PROCESSING", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.MaxConcurrentProcessing)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.SafeFraction = 1.5
	assert.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.Queue.MaxConcurrentProcessing = 0
	assert.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.LLM.ProviderOrder = []string{"missing"}
	assert.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.LLM.Providers["bad"] = ProviderConfig{Type: "carrier-pigeon"}
	assert.Error(t, Validate(cfg))
}
