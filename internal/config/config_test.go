package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 60, cfg.Chat.StreamIdleTimeout)
	assert.Equal(t, 50, cfg.Chat.SessionPageSize)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"missing provider", func(c *Config) { c.Provider.Name = "" }},
		{"unknown provider", func(c *Config) { c.Provider.Name = "gemini" }},
		{"missing api key", func(c *Config) { c.Provider.APIKey = "" }},
		{"missing model", func(c *Config) { c.Provider.Model = "" }},
		{"zero idle timeout", func(c *Config) { c.Chat.StreamIdleTimeout = 0 }},
		{"zero page size", func(c *Config) { c.Chat.SessionPageSize = 0 }},
		{"retention without age", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.MaxAgeDays = 0
		}},
		{"retention without schedule", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.Schedule = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.StreamIdleTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionMaxAge())
}

func TestString_MasksAPIKey(t *testing.T) {
	cfg := validConfig()

	out := cfg.String()
	assert.NotContains(t, out, "sk-test")
	assert.Contains(t, out, "[REDACTED]")

	// Masking must not mutate the original
	require.Equal(t, "sk-test", cfg.Provider.APIKey)
}
