package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Matching   MatchingConfig   `yaml:"matching" mapstructure:"matching"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for enrichment.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TokensPerMinute int    `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
}

// EmbeddingConfig selects the tier-2 similarity backend. Provider "lexical"
// needs no credentials; "gemini" embeds through the genai API.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// EnrichmentConfig configures the external-knowledge fallback.
type EnrichmentConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxConfidence       float64 `yaml:"max_confidence" mapstructure:"max_confidence"`
	CacheTTLHours       int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RetryAttempts       int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// CacheConfig selects where enrichment responses are cached: "store"
// (the configured database), "redis" or "memory".
type CacheConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
}

// MatchingConfig holds the per-tier acceptance thresholds.
type MatchingConfig struct {
	ExactThreshold      float64 `yaml:"exact_threshold" mapstructure:"exact_threshold"`
	SemanticThreshold   float64 `yaml:"semantic_threshold" mapstructure:"semantic_threshold"`
	FuzzyThreshold      float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" mapstructure:"auto_accept_threshold"`
}

// PipelineConfig configures confidence aggregation and validation.
type PipelineConfig struct {
	AutoApproveThreshold float64      `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	MaxPrice             float64      `yaml:"max_price" mapstructure:"max_price"`
	VocabularyPath       string       `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
	Weights              StageWeights `yaml:"weights" mapstructure:"weights"`
}

// StageWeights are the per-stage weights of the overall confidence.
type StageWeights struct {
	Matching      float64 `yaml:"matching" mapstructure:"matching"`
	Inheritance   float64 `yaml:"inheritance" mapstructure:"inheritance"`
	Customization float64 `yaml:"customization" mapstructure:"customization"`
	SpringOptions float64 `yaml:"spring_options" mapstructure:"spring_options"`
	Validation    float64 `yaml:"validation" mapstructure:"validation"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	ConcurrencyLimit int `yaml:"concurrency_limit" mapstructure:"concurrency_limit"`
}

// PricingConfig holds per-model Anthropic pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICELIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "pricelist.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.tokens_per_minute", 40000)
	v.SetDefault("embedding.provider", "lexical")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.max_confidence", 0.7)
	v.SetDefault("enrichment.cache_ttl_hours", 720)
	v.SetDefault("enrichment.retry_attempts", 3)
	v.SetDefault("enrichment.breaker_threshold", 5)
	v.SetDefault("enrichment.breaker_cooldown_secs", 60)
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.prefix", "pricelist:")
	v.SetDefault("matching.exact_threshold", 0.95)
	v.SetDefault("matching.semantic_threshold", 0.80)
	v.SetDefault("matching.fuzzy_threshold", 0.60)
	v.SetDefault("matching.auto_accept_threshold", 0.90)
	v.SetDefault("pipeline.auto_approve_threshold", 0.90)
	v.SetDefault("pipeline.max_price", 250000)
	v.SetDefault("pipeline.weights.matching", 0.3)
	v.SetDefault("pipeline.weights.inheritance", 0.2)
	v.SetDefault("pipeline.weights.customization", 0.2)
	v.SetDefault("pipeline.weights.spring_options", 0.1)
	v.SetDefault("pipeline.weights.validation", 0.2)
	v.SetDefault("batch.concurrency_limit", 10)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
