package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for errors.
// Returns a sentinel error (wrapped with context) on the first violation so
// callers can match with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateEmbedder()
}

func (c *Config) validateAuth() error {
	// An empty write token means permissive mode, in which no token is ever
	// checked. An admin token on its own would be silently ignored, so
	// reject the combination instead of letting it look like a lockdown.
	if c.AdminToken != "" && c.WriteToken == "" {
		return fmt.Errorf("%w: admin_token requires write_token (empty write_token disables all token checks)", ErrInvalidAuthTokens)
	}
	if c.AdminToken != "" && c.AdminToken == c.WriteToken {
		return fmt.Errorf("%w: admin_token must differ from write_token", ErrInvalidAuthTokens)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q (expected one of disable, allow, prefer, require, verify-ca, verify-full)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.EmbeddingDim != DimSmall && c.EmbeddingDim != DimLarge {
		return fmt.Errorf("%w: %d (expected %d or %d)", ErrInvalidEmbeddingDim, c.EmbeddingDim, DimSmall, DimLarge)
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("%w: %g out of range [0, 1]", ErrInvalidThreshold, c.SearchThreshold)
	}
	if c.SearchLimit < 1 || c.SearchLimit > MaxSearchLimit {
		return fmt.Errorf("%w: %d out of range [1, %d]", ErrInvalidLimit, c.SearchLimit, MaxSearchLimit)
	}
	// pgvector accepts ef_search in [1, 1000]; 0 keeps the engine default.
	if c.HNSWEfSearch < 0 || c.HNSWEfSearch > 1000 {
		return fmt.Errorf("%w: %d out of range [0, 1000]", ErrInvalidEfSearch, c.HNSWEfSearch)
	}
	return nil
}

func (c *Config) validateEmbedder() error {
	if !c.EmbedderEnabled() {
		return nil
	}
	if strings.TrimSpace(c.Embedder.Model) == "" {
		return fmt.Errorf("%w: model must not be empty when embedder is enabled", ErrInvalidEmbedderModel)
	}
	if strings.TrimSpace(c.Embedder.BaseURL) == "" {
		return fmt.Errorf("%w: base_url must not be empty when embedder is enabled", ErrInvalidEmbedderModel)
	}
	return nil
}
