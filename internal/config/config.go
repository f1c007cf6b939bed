// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragstore/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Store: embedding dimension, search defaults, HNSW search breadth
//   - Auth: bearer tokens mapped to store capabilities
//   - Embedder: OpenRouter (OpenAI-compatible) embeddings gateway
//   - Tracing: OTLP trace export
//
// Security: sensitive fields (password, tokens, API key) are masked in
// MarshalJSON and never logged in clear text.
//
// Error handling uses sentinel errors so callers can match with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidEmbeddingDim indicates an unsupported embedding dimension.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidThreshold indicates the default search threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid search threshold")

	// ErrInvalidLimit indicates the default search limit is out of range.
	ErrInvalidLimit = errors.New("invalid search limit")

	// ErrInvalidEfSearch indicates the HNSW ef_search value is out of range.
	ErrInvalidEfSearch = errors.New("invalid hnsw ef_search")

	// ErrMissingAPIKey indicates the embedder is enabled without an API key.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidAuthTokens indicates an inconsistent token configuration,
	// such as an admin token without a write token.
	ErrInvalidAuthTokens = errors.New("invalid auth tokens")
)

// Supported embedding dimensions. The dimension is a deployment-time
// constant: every stored vector and every query vector must match it, and
// changing it requires recreating the store.
const (
	DimSmall = 1536 // text-embedding-3-small
	DimLarge = 3072 // text-embedding-3-large
)

// Search defaults for the similarity contract.
const (
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 10

	// MaxSearchLimit caps the per-request result count to prevent
	// unbounded result sets.
	MaxSearchLimit = 100
)

// EmbedderConfig configures the optional OpenAI-compatible embeddings
// gateway. When APIKey is empty the server only accepts pre-computed
// vectors.
type EmbedderConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
}

// TracingConfig configures OTLP trace export. Disabled unless Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, tokens), update MarshalJSON.
type Config struct {
	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Embedding store configuration
	EmbeddingDim    int     `mapstructure:"embedding_dim" json:"embedding_dim"`
	SearchThreshold float64 `mapstructure:"search_threshold" json:"search_threshold"`
	SearchLimit     int     `mapstructure:"search_limit" json:"search_limit"`

	// HNSWEfSearch sets hnsw.ef_search for similarity queries. Higher values
	// improve recall at the cost of latency; 0 keeps the engine default.
	HNSWEfSearch int `mapstructure:"hnsw_ef_search" json:"hnsw_ef_search"`

	// Authorization tokens. An empty WriteToken runs the store in the
	// permissive allow-all mode of the reference schema; see authz package.
	WriteToken string `mapstructure:"write_token" json:"write_token"` // SENSITIVE: masked in MarshalJSON
	AdminToken string `mapstructure:"admin_token" json:"admin_token"` // SENSITIVE: masked in MarshalJSON

	// Server configuration
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int  `mapstructure:"rate_burst" json:"rate_burst"`   // Per-IP rate limiter burst (0 = default)

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	Embedder EmbedderConfig `mapstructure:"embedder" json:"embedder"`
	Tracing  TracingConfig  `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragstore")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// POSTGRES_URI / DATABASE_URL override individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	// Fail fast on invalid configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragstore")
	v.SetDefault("postgres_password", "ragstore_dev_password")
	v.SetDefault("postgres_db_name", "ragstore")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Store defaults
	v.SetDefault("embedding_dim", DimSmall)
	v.SetDefault("search_threshold", DefaultSearchThreshold)
	v.SetDefault("search_limit", DefaultSearchLimit)
	v.SetDefault("hnsw_ef_search", 0)

	// Server defaults
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Embedder defaults (OpenRouter exposes the OpenAI embeddings API)
	v.SetDefault("embedder.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("embedder.model", "text-embedding-3-small")

	// Tracing defaults (disabled until endpoint is set)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "ragstore")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets arrive only via environment, never via config file in production.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedding_dim", "EMBEDDING_DIM")
	mustBind("embedder.api_key", "OPENROUTER_API_KEY")
	mustBind("embedder.model", "EMBEDDING_MODEL")
	mustBind("write_token", "RAGSTORE_WRITE_TOKEN")
	mustBind("admin_token", "RAGSTORE_ADMIN_TOKEN")
	mustBind("trust_proxy", "RAGSTORE_TRUST_PROXY")
	mustBind("rate_burst", "RAGSTORE_RATE_BURST")
	mustBind("log_level", "RAGSTORE_LOG_LEVEL")
	mustBind("log_json", "RAGSTORE_LOG_JSON")
	mustBind("tracing.endpoint", "OTLP_ENDPOINT")

	// NOTE: POSTGRES_URI / DATABASE_URL are parsed separately in
	// parseDatabaseURL because they expand into several fields.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	masked.WriteToken = maskSecret(c.WriteToken)
	masked.AdminToken = maskSecret(c.AdminToken)
	masked.Embedder.APIKey = maskSecret(c.Embedder.APIKey)
	return json.Marshal(masked)
}

// EmbedderEnabled reports whether server-side embedding is configured.
func (c *Config) EmbedderEnabled() bool {
	return c.Embedder.APIKey != ""
}

// TracingEnabled reports whether OTLP trace export is configured.
func (c *Config) TracingEnabled() bool {
	return c.Tracing.Endpoint != ""
}
