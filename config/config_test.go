package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "anthropic", cfg.Completion.Provider)
	assert.Equal(t, memory.DefaultConfig(), cfg.Memory)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("COMPANION_STORE_DRIVER", "postgres")
	t.Setenv("COMPANION_STORE_DSN", "postgres://localhost/companion")
	t.Setenv("COMPANION_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("COMPANION_COMPLETION_MODEL", "claude-test")
	t.Setenv("COMPANION_MEMORY_MIN_SIMILARITY", "0.6")
	t.Setenv("COMPANION_MEMORY_HALF_LIFE", "168h")
	t.Setenv("COMPANION_MEMORY_ENABLED", "false")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/companion", cfg.Store.DSN)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "claude-test", cfg.Completion.ExtractionModel)
	assert.InDelta(t, 0.6, cfg.Memory.MinSimilarity, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.Memory.HalfLife)
	assert.False(t, cfg.Memory.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\n  dsn: /tmp/test.db\nmemory:\n  search-k: 5\n"), 0o600))

	v := New()
	v.Set("config", path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Store.DSN)
	assert.Equal(t, 5, cfg.Memory.SearchK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }},
		{"bad embedder", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"zero dims", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"onnx without model", func(c *Config) { c.Embedding.Provider = "onnx" }},
		{"bad completer", func(c *Config) { c.Completion.Provider = "gemini" }},
		{"threshold out of range", func(c *Config) { c.Memory.MinSimilarity = 1 }},
		{"floor out of range", func(c *Config) { c.Memory.DecayFloor = 2 }},
		{"zero threshold", func(c *Config) { c.Memory.MinSimilarity = 0 }},
		{"zero floor", func(c *Config) { c.Memory.DecayFloor = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(New())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("COMPANION_EMBEDDING_PROVIDER=mock\n"), 0o600))
	t.Setenv("COMPANION_EMBEDDING_PROVIDER", "")
	os.Unsetenv("COMPANION_EMBEDDING_PROVIDER")

	LoadDotEnv(path)
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
}
