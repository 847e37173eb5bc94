package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Sayra configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Model provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Session store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Chat turn behavior
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Session retention
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ProviderConfig holds model provider configuration
type ProviderConfig struct {
	Name         string  `json:"name" mapstructure:"name"` // anthropic, openai
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ChatConfig holds chat turn configuration
type ChatConfig struct {
	// Maximum gap between provider fragments before the stream is
	// treated as stalled, in seconds.
	StreamIdleTimeout int `json:"stream_idle_timeout" mapstructure:"stream_idle_timeout"`

	// Page size for the session listing endpoint.
	SessionPageSize int `json:"session_page_size" mapstructure:"session_page_size"`
}

// RetentionConfig holds session retention configuration
type RetentionConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Schedule   string `json:"schedule" mapstructure:"schedule"` // cron expression
	ArchiveDir string `json:"archive_dir" mapstructure:"archive_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Provider: ProviderConfig{
			Name:        "anthropic",
			Model:       "claude-sonnet-4",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Chat: ChatConfig{
			StreamIdleTimeout: 60,
			SessionPageSize:   50,
		},
		Retention: RetentionConfig{
			Enabled:    false,
			MaxAgeDays: 30,
			Schedule:   "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// StreamIdleTimeout returns the configured idle timeout as a duration.
func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.Chat.StreamIdleTimeout) * time.Second
}

// RetentionMaxAge returns the configured retention age as a duration.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}

// String returns a JSON representation of the config with the API key
// masked.
func (c *Config) String() string {
	masked := *c
	if masked.Provider.APIKey != "" {
		masked.Provider.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Provider.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	validProviders := []string{"anthropic", "openai"}
	valid := false
	for _, vp := range validProviders {
		if c.Provider.Name == vp {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider %s (must be: anthropic, openai)", c.Provider.Name)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider model is required")
	}

	if c.Chat.StreamIdleTimeout <= 0 {
		return fmt.Errorf("stream_idle_timeout must be positive, got %d", c.Chat.StreamIdleTimeout)
	}
	if c.Chat.SessionPageSize <= 0 {
		return fmt.Errorf("session_page_size must be positive, got %d", c.Chat.SessionPageSize)
	}

	if c.Retention.Enabled {
		if c.Retention.MaxAgeDays <= 0 {
			return fmt.Errorf("retention max_age_days must be positive when retention is enabled")
		}
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention schedule is required when retention is enabled")
		}
	}

	return nil
}
