package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: built-in defaults, overlaid with
// the YAML file at path (if it exists; ${VAR} references are expanded), then
// environment variable overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		overlay, err := loadYAML(path)
		if err != nil {
			return nil, err
		}
		if overlay != nil {
			if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge configuration: %w", err)
			}
			slog.Info("Loaded configuration overlay", "path", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No configuration file, using defaults", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var overlay Config
	if err := yaml.Unmarshal([]byte(expanded), &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &overlay, nil
}

// applyEnvOverrides maps the documented environment variables onto the
// config. Unset or malformed values leave the current setting untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if d, ok := envSeconds("SESSION_TTL_SECONDS"); ok {
		cfg.Session.TTL = d
	}
	if d, ok := envSeconds("CONVERSATION_TTL_SECONDS"); ok {
		cfg.Session.ConversationTTL = d
	}
	if n, ok := envInt("MAX_CONCURRENT_PROCESSING"); ok {
		cfg.Queue.MaxConcurrentProcessing = n
	}
	if n, ok := envInt("CHUNK_OVERLAP_CHARS"); ok {
		cfg.Chunking.OverlapChars = n
	}
	if d, ok := envMillis("MODEL_CACHE_TTL_MS"); ok {
		cfg.LLM.ModelCacheTTL = d
	}
	if d, ok := envMillis("CLEANUP_INTERVAL_MS"); ok {
		cfg.Cleanup.Interval = d
	}
	if v := os.Getenv("OLLAMA_LOCAL_URL"); v != "" {
		overrideProviderURL(cfg, "ollama-local", "ollama", v)
	}
	if v := os.Getenv("OLLAMA_REMOTE_URL"); v != "" {
		overrideProviderURL(cfg, "ollama-remote", "ollama", v)
	}
}

func overrideProviderURL(cfg *Config, name, typ, url string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	p, ok := cfg.LLM.Providers[name]
	if !ok {
		p = ProviderConfig{Type: typ}
		cfg.LLM.ProviderOrder = append(cfg.LLM.ProviderOrder, name)
	}
	p.BaseURL = url
	cfg.LLM.Providers[name] = p
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring malformed environment override", "key", key, "value", v)
		return 0, false
	}
	return n, true
}

func envSeconds(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envMillis(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
