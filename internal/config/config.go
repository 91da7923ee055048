// Package config loads Oasis's runtime configuration: defaults, overridden
// by an oasis.toml file, overridden again by environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Telegram  TelegramConfig  `toml:"telegram"`
	Chat      ChatConfig      `toml:"chat"`
	Intent    IntentConfig    `toml:"intent"`
	Action    ActionConfig    `toml:"action"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Brain     BrainConfig     `toml:"brain"`
	Search    SearchConfig    `toml:"search"`
	Observer  ObserverConfig  `toml:"observer"`
}

type TelegramConfig struct {
	Token         string `toml:"token"`
	AllowedUserID string `toml:"allowed_user_id"`
}

// ChatConfig configures the LLM used for the streaming chat path (§4.6).
type ChatConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"` // only used for custom openai-compatible endpoints
}

// IntentConfig configures the LLM used for intent classification (§4.5).
// Typically a smaller/cheaper model than chat or action.
type IntentConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// ActionConfig configures the LLM used by the sub-agent tool-use loop
// (§4.3). Falls back to Chat's settings when unset.
type ActionConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// DatabaseConfig selects and configures the VectorStore backend. Postgres is
// used when DSN is non-empty; otherwise the sqlite Path is used.
type DatabaseConfig struct {
	Path string `toml:"path"`
	DSN  string `toml:"dsn"`
}

type BrainConfig struct {
	ContextWindow       int    `toml:"context_window"`
	VectorTopK          int    `toml:"vector_top_k"`
	TimezoneOffset      int    `toml:"timezone_offset"`
	WorkspacePath       string `toml:"workspace_path"`
	MaxConcurrentAgents int    `toml:"max_concurrent_agents"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Chat:      ChatConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Intent:    IntentConfig{Provider: "gemini", Model: "gemini-2.5-flash-lite"},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "gemini-embedding-001", Dimensions: 1536},
		Database:  DatabaseConfig{Path: "oasis.db"},
		Brain: BrainConfig{
			ContextWindow:       20,
			VectorTopK:          10,
			TimezoneOffset:      7,
			WorkspacePath:       filepath.Join(home, "oasis-workspace"),
			MaxConcurrentAgents: 4,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv("OASIS_CONFIG")
	}
	if path == "" {
		path = "oasis.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("OASIS_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("OASIS_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("OASIS_INTENT_API_KEY"); v != "" {
		cfg.Intent.APIKey = v
	}
	if v := os.Getenv("OASIS_ACTION_API_KEY"); v != "" {
		cfg.Action.APIKey = v
	}
	if v := os.Getenv("OASIS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("OASIS_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("OASIS_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if os.Getenv("OASIS_OBSERVER_ENABLED") == "true" || os.Getenv("OASIS_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks: intent/action/embedding inherit chat's credentials when unset.
	if cfg.Intent.APIKey == "" {
		cfg.Intent.APIKey = cfg.Chat.APIKey
	}
	if cfg.Action.Provider == "" {
		cfg.Action.Provider = cfg.Chat.Provider
		cfg.Action.Model = cfg.Chat.Model
		cfg.Action.BaseURL = cfg.Chat.BaseURL
	}
	if cfg.Action.APIKey == "" {
		cfg.Action.APIKey = cfg.Chat.APIKey
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.Chat.APIKey
	}
	if cfg.Brain.MaxConcurrentAgents <= 0 {
		cfg.Brain.MaxConcurrentAgents = 4
	}

	return cfg
}
