// Package config loads and validates the cascade configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CASCADE_EMBEDDING_API_KEY.
const EnvPrefix = "CASCADE"

// Config is the full application configuration.
type Config struct {
	Logging        LoggingConfig        `mapstructure:"logging"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	VectorIndex    VectorIndexConfig    `mapstructure:"vector_index"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Tenant         string               `mapstructure:"tenant"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig configures the embedding API. An empty Model disables
// semantic search and indexing.
type EmbeddingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// Enabled reports whether an embedding model is configured.
func (c EmbeddingConfig) Enabled() bool {
	return c.Model != ""
}

// VectorIndexConfig configures Typesense. An empty URL disables semantic
// search and indexing.
type VectorIndexConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a vector index is configured.
func (c VectorIndexConfig) Enabled() bool {
	return c.URL != ""
}

// QueueConfig configures background indexing.
type QueueConfig struct {
	RedisURL    string `mapstructure:"redis_url"`
	Name        string `mapstructure:"name"`
	Concurrency int    `mapstructure:"concurrency"`
}

// ClassificationConfig tunes the cascade.
type ClassificationConfig struct {
	BatchWindow    int           `mapstructure:"batch_window"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("tenant", "default")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("database.path", "$HOME/.local/share/cascade/cascade.db")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.requests_per_minute", 3000)
	v.SetDefault("embedding.cache_ttl", time.Hour)
	v.SetDefault("vector_index.url", "")
	v.SetDefault("vector_index.api_key", "")
	v.SetDefault("vector_index.collection", "transactions")
	v.SetDefault("vector_index.timeout", 10*time.Second)
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.name", "indexing")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("classification.batch_window", 5)
	v.SetDefault("classification.attempt_timeout", 10*time.Second)
}

// BindEnv makes every key overridable from the environment, e.g.
// CASCADE_EMBEDDING_API_KEY for embedding.api_key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Tenant, validation.Required),
		validation.Field(&c.Logging),
		validation.Field(&c.Database),
		validation.Field(&c.Embedding),
		validation.Field(&c.VectorIndex),
		validation.Field(&c.Queue),
		validation.Field(&c.Classification),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the logging section.
func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.Format, validation.In("console", "json")),
	)
}

// Validate checks the database section.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// Validate checks the embedding section.
func (c EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.When(c.Enabled(), validation.Required, is.URL)),
		validation.Field(&c.Dimensions, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
	)
}

// Validate checks the vector index section.
func (c VectorIndexConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.When(c.Enabled(), is.URL)),
		validation.Field(&c.Collection, validation.When(c.Enabled(), validation.Required)),
	)
}

// Validate checks the queue section.
func (c QueueConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Concurrency, validation.Min(1)),
	)
}

// Validate checks the classification section.
func (c ClassificationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchWindow, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.AttemptTimeout, validation.Required),
	)
}

// ExpandPath resolves a leading ~ to the home directory and expands $VAR
// references. The path is returned unchanged when the home directory is
// unknown.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
