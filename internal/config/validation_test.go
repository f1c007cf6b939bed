package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes validation.
// Tests mutate individual fields to exercise specific checks.
func validConfig() *Config {
	return &Config{
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "ragstore",
		PostgresPassword: "secret",
		PostgresDBName:   "ragstore",
		PostgresSSLMode:  "disable",
		EmbeddingDim:     DimSmall,
		SearchThreshold:  DefaultSearchThreshold,
		SearchLimit:      DefaultSearchLimit,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() on valid config returned error: %v", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil config = %v, want ErrConfigNil", err)
	}
}

func TestValidate_Sentinels(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.PostgresHost = "  " },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.PostgresPort = 0 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty db name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "bogus sslmode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "maybe" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
		{
			name:    "unsupported dimension",
			mutate:  func(c *Config) { c.EmbeddingDim = 768 },
			wantErr: ErrInvalidEmbeddingDim,
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.SearchThreshold = -0.1 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.SearchThreshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "limit zero",
			mutate:  func(c *Config) { c.SearchLimit = 0 },
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "limit above cap",
			mutate:  func(c *Config) { c.SearchLimit = MaxSearchLimit + 1 },
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "ef_search out of range",
			mutate:  func(c *Config) { c.HNSWEfSearch = 5000 },
			wantErr: ErrInvalidEfSearch,
		},
		{
			name:    "admin token without write token",
			mutate:  func(c *Config) { c.AdminToken = "admin-secret" },
			wantErr: ErrInvalidAuthTokens,
		},
		{
			name: "admin token equal to write token",
			mutate: func(c *Config) {
				c.WriteToken = "shared-secret"
				c.AdminToken = "shared-secret"
			},
			wantErr: ErrInvalidAuthTokens,
		},
		{
			name: "embedder without model",
			mutate: func(c *Config) {
				c.Embedder.APIKey = "sk-or-123"
				c.Embedder.Model = ""
				c.Embedder.BaseURL = "https://openrouter.ai/api/v1"
			},
			wantErr: ErrInvalidEmbedderModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_BothTokens(t *testing.T) {
	cfg := validConfig()
	cfg.WriteToken = "write-secret"
	cfg.AdminToken = "admin-secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with write and admin tokens returned error: %v", err)
	}
}

func TestValidate_LargeDimension(t *testing.T) {
	cfg := validConfig()
	cfg.EmbeddingDim = DimLarge
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with 3072 dimension returned error: %v", err)
	}
}
