// Package config loads process configuration from flags, environment
// (prefix COMPANION_), an optional config file and a .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/becomeliminal/nim-memory/memory"
)

// EnvPrefix prefixes every environment variable, e.g. COMPANION_STORE_DRIVER.
const EnvPrefix = "COMPANION"

// Config is the full process configuration.
type Config struct {
	LogLevel string

	Store      Store
	Embedding  Embedding
	Completion Completion
	Memory     *memory.Config
}

// Store selects the durable store and the optional vector index.
type Store struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	DSN    string
	// IndexPath enables the chromem side-car index. "memory" keeps it in
	// process memory; any other non-empty value is a persistence directory.
	IndexPath string
}

// Embedding configures the embedding provider.
type Embedding struct {
	// Provider is "openai", "onnx" or "mock".
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	// CacheSize is the number of cached vectors; 0 disables the cache.
	CacheSize int64

	ONNXLibrary   string
	ONNXModel     string
	ONNXTokenizer string
}

// Completion configures the chat and extraction model provider.
type Completion struct {
	// Provider is "anthropic" or "openai".
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	// ExtractionModel defaults to Model.
	ExtractionModel string
	// ExtractionRPS caps extraction calls per second; 0 means unlimited.
	ExtractionRPS float64
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	def := memory.DefaultConfig()

	v.SetDefault("log-level", "info")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "companion.db")
	v.SetDefault("store.index-path", "")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.api-key", "")
	v.SetDefault("embedding.base-url", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.cache-size", 10_000)
	v.SetDefault("embedding.onnx-library", "")
	v.SetDefault("embedding.onnx-model", "")
	v.SetDefault("embedding.onnx-tokenizer", "")

	v.SetDefault("completion.provider", "anthropic")
	v.SetDefault("completion.api-key", "")
	v.SetDefault("completion.base-url", "")
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.extraction-model", "")
	v.SetDefault("completion.extraction-rps", 0)

	v.SetDefault("memory.enabled", def.Enabled)
	v.SetDefault("memory.min-similarity", def.MinSimilarity)
	v.SetDefault("memory.search-k", def.SearchK)
	v.SetDefault("memory.recent-limit", def.RecentLimit)
	v.SetDefault("memory.profile-list-limit", def.ProfileListLimit)
	v.SetDefault("memory.candidate-multiplier", def.CandidateMultiplier)
	v.SetDefault("memory.max-context-chars", def.MaxContextChars)
	v.SetDefault("memory.max-embed-chars", def.MaxEmbedChars)
	v.SetDefault("memory.embed-timeout", def.EmbedTimeout)
	v.SetDefault("memory.half-life", def.HalfLife)
	v.SetDefault("memory.decay-floor", def.DecayFloor)
	v.SetDefault("memory.recall-boost", def.RecallBoost)
	v.SetDefault("memory.max-strength", def.MaxStrength)
	v.SetDefault("memory.extraction-timeout", def.ExtractionTimeout)
	v.SetDefault("memory.extraction-max-tokens", def.ExtractionMaxTokens)
	v.SetDefault("memory.history-turns", def.HistoryTurns)
	v.SetDefault("memory.max-concurrent-extractions", def.MaxConcurrentExtractions)
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel: v.GetString("log-level"),
		Store: Store{
			Driver:    strings.ToLower(v.GetString("store.driver")),
			DSN:       v.GetString("store.dsn"),
			IndexPath: v.GetString("store.index-path"),
		},
		Embedding: Embedding{
			Provider:      strings.ToLower(v.GetString("embedding.provider")),
			APIKey:        v.GetString("embedding.api-key"),
			BaseURL:       v.GetString("embedding.base-url"),
			Model:         v.GetString("embedding.model"),
			Dimensions:    v.GetInt("embedding.dimensions"),
			CacheSize:     v.GetInt64("embedding.cache-size"),
			ONNXLibrary:   v.GetString("embedding.onnx-library"),
			ONNXModel:     v.GetString("embedding.onnx-model"),
			ONNXTokenizer: v.GetString("embedding.onnx-tokenizer"),
		},
		Completion: Completion{
			Provider:        strings.ToLower(v.GetString("completion.provider")),
			APIKey:          v.GetString("completion.api-key"),
			BaseURL:         v.GetString("completion.base-url"),
			Model:           v.GetString("completion.model"),
			ExtractionModel: v.GetString("completion.extraction-model"),
			ExtractionRPS:   v.GetFloat64("completion.extraction-rps"),
		},
		Memory: &memory.Config{
			Enabled:                  v.GetBool("memory.enabled"),
			MinSimilarity:            v.GetFloat64("memory.min-similarity"),
			SearchK:                  v.GetInt("memory.search-k"),
			RecentLimit:              v.GetInt("memory.recent-limit"),
			ProfileListLimit:         v.GetInt("memory.profile-list-limit"),
			CandidateMultiplier:      v.GetInt("memory.candidate-multiplier"),
			MaxContextChars:          v.GetInt("memory.max-context-chars"),
			MaxEmbedChars:            v.GetInt("memory.max-embed-chars"),
			EmbedTimeout:             v.GetDuration("memory.embed-timeout"),
			HalfLife:                 v.GetDuration("memory.half-life"),
			DecayFloor:               v.GetFloat64("memory.decay-floor"),
			RecallBoost:              v.GetFloat64("memory.recall-boost"),
			MaxStrength:              v.GetFloat64("memory.max-strength"),
			ExtractionTimeout:        v.GetDuration("memory.extraction-timeout"),
			ExtractionMaxTokens:      v.GetInt("memory.extraction-max-tokens"),
			HistoryTurns:             v.GetInt("memory.history-turns"),
			MaxConcurrentExtractions: v.GetInt("memory.max-concurrent-extractions"),
		},
	}
	if cfg.Completion.ExtractionModel == "" {
		cfg.Completion.ExtractionModel = cfg.Completion.Model
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required")
	}

	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Provider == "onnx" && c.Embedding.ONNXModel == "" {
		return fmt.Errorf("embedding onnx-model is required for the onnx provider")
	}

	switch c.Completion.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported completion provider %q", c.Completion.Provider)
	}

	m := c.Memory
	if m.MinSimilarity < -1 || m.MinSimilarity >= 1 {
		return fmt.Errorf("memory min-similarity must be in [-1, 1), got %v", m.MinSimilarity)
	}
	// memory.Config treats zero as unset and substitutes the default.
	if m.MinSimilarity == 0 {
		return fmt.Errorf("memory min-similarity 0 selects the default (%v); use a small non-zero value instead", memory.DefaultConfig().MinSimilarity)
	}
	if m.DecayFloor <= 0 || m.DecayFloor > 1 {
		return fmt.Errorf("memory decay-floor must be in (0, 1], got %v", m.DecayFloor)
	}
	return nil
}
