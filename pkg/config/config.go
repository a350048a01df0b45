// Package config holds the wizard backend configuration: defaults-first
// structs, optional YAML overlay and environment overrides.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Queue    QueueConfig    `yaml:"queue"`
	Chunking ChunkingConfig `yaml:"chunking"`
	LLM      LLMConfig      `yaml:"llm"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port             string        `yaml:"port"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
}

// SessionConfig controls session and conversation lifetimes.
type SessionConfig struct {
	// TTL is the initial session lifetime; extended only on explicit
	// request.
	TTL time.Duration `yaml:"ttl"`
	// ConversationTTL bounds the hot-tier conversation cache.
	ConversationTTL time.Duration `yaml:"conversation_ttl"`
}

// QueueConfig controls the scheduler and the processing queue.
type QueueConfig struct {
	// MaxConcurrentProcessing caps prompts being processed at once.
	MaxConcurrentProcessing int `yaml:"max_concurrent_processing"`
	// PollInterval is the fallback wakeup when no enqueue notification
	// arrives (e.g. jobs enqueued by a previous process before restart).
	PollInterval time.Duration `yaml:"poll_interval"`
	// GracefulShutdownTimeout is the drain window for in-flight prompts.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// ChunkingConfig controls how oversized inputs are split for the model.
type ChunkingConfig struct {
	// SafeFraction of the model context window usable by a single call.
	SafeFraction float64 `yaml:"safe_fraction"`
	// PerFileContentFraction of the window usable by one file's content
	// in a per-file plan (the rest is instructions and carried context).
	PerFileContentFraction float64 `yaml:"per_file_content_fraction"`
	// OverlapChars carried between consecutive chunks for continuity.
	OverlapChars int `yaml:"overlap_chars"`
	// FallbackWindowChars applies when the model's window is unknown.
	FallbackWindowChars int `yaml:"fallback_window_chars"`
}

// ProviderConfig describes one LLM provider endpoint.
type ProviderConfig struct {
	// Type is one of "openai", "gemini", "ollama".
	Type string `yaml:"type"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// Enabled allows switching a configured provider off without
	// removing its block.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// LLMConfig controls providers, model selection and response handling.
type LLMConfig struct {
	// Providers in gateway preference order as listed in ProviderOrder.
	Providers     map[string]ProviderConfig `yaml:"providers"`
	ProviderOrder []string                  `yaml:"provider_order"`
	// PreferredModels get the lowest selection priority, in order.
	PreferredModels []string `yaml:"preferred_models"`
	// ModelCacheTTL bounds how long a provider's model list is reused.
	ModelCacheTTL time.Duration `yaml:"model_cache_ttl"`
	// RequestTimeout bounds a single completion call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DefaultTemperature applies when the registry row carries none.
	DefaultTemperature float64 `yaml:"default_temperature"`
}

// CleanupConfig controls the background retention sweep.
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval"`
	// EventTTL bounds how long persisted websocket events are kept.
	EventTTL time.Duration `yaml:"event_ttl"`
}

// DefaultConfig returns the built-in defaults. YAML and environment
// overrides are layered on top by Load.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 30 * time.Second,
			WSWriteTimeout:  10 * time.Second,
		},
		Session: SessionConfig{
			TTL:             time.Hour,
			ConversationTTL: 24 * time.Hour,
		},
		Queue: QueueConfig{
			MaxConcurrentProcessing: 5,
			PollInterval:            time.Second,
			GracefulShutdownTimeout: 30 * time.Second,
		},
		Chunking: ChunkingConfig{
			SafeFraction:           0.8,
			PerFileContentFraction: 0.6,
			OverlapChars:           500,
			FallbackWindowChars:    100000,
		},
		LLM: LLMConfig{
			Providers: map[string]ProviderConfig{
				"ollama-local": {Type: "ollama", BaseURL: "http://localhost:11434"},
			},
			ProviderOrder:      []string{"ollama-local"},
			ModelCacheTTL:      5 * time.Minute,
			RequestTimeout:     5 * time.Minute,
			DefaultTemperature: 0.7,
		},
		Cleanup: CleanupConfig{
			Interval: time.Hour,
			EventTTL: 24 * time.Hour,
		},
	}
}

// Validate rejects configurations the runtime cannot operate with.
func Validate(cfg *Config) error {
	if cfg.Queue.MaxConcurrentProcessing < 1 {
		return fmt.Errorf("queue.max_concurrent_processing must be >= 1, got %d",
			cfg.Queue.MaxConcurrentProcessing)
	}
	if cfg.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", cfg.Session.TTL)
	}
	if cfg.Chunking.SafeFraction <= 0 || cfg.Chunking.SafeFraction > 1 {
		return fmt.Errorf("chunking.safe_fraction must be in (0, 1], got %g",
			cfg.Chunking.SafeFraction)
	}
	if cfg.Chunking.PerFileContentFraction <= 0 || cfg.Chunking.PerFileContentFraction > 1 {
		return fmt.Errorf("chunking.per_file_content_fraction must be in (0, 1], got %g",
			cfg.Chunking.PerFileContentFraction)
	}
	if cfg.Chunking.OverlapChars < 0 {
		return fmt.Errorf("chunking.overlap_chars must be >= 0, got %d",
			cfg.Chunking.OverlapChars)
	}
	if len(cfg.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must not be empty")
	}
	for _, name := range cfg.LLM.ProviderOrder {
		if _, ok := cfg.LLM.Providers[name]; !ok {
			return fmt.Errorf("llm.provider_order references unknown provider %q", name)
		}
	}
	for name, p := range cfg.LLM.Providers {
		switch p.Type {
		case "openai", "gemini", "ollama":
		default:
			return fmt.Errorf("llm.providers.%s: unknown type %q", name, p.Type)
		}
	}
	return nil
}
