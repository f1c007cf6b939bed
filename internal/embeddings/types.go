package embeddings

import "time"

// Record is a stored embedding row. Records are append-only: once created
// they are never mutated, only deleted by explicit administrative action.
type Record struct {
	ID        int64     // Identity assigned by the database; never reused
	Content   string    // Text payload, required
	Embedding []float32 // Fixed-dimension vector
	Metadata  Metadata  // Optional schema-less document
	CreatedAt time.Time // Insertion time, immutable
}

// Match is a single similarity search result.
type Match struct {
	ID         int64
	Content    string
	Metadata   Metadata
	Similarity float64 // 1 - cosine_distance; in [0, 1] for normalized embeddings
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	threshold float64
	limit     int
}

// Search defaults, matching the SQL function's defaults.
const (
	DefaultThreshold = 0.7
	DefaultLimit     = 10

	// maxLimit bounds a single search to prevent resource exhaustion.
	// Out-of-range limits are rejected, not clamped.
	maxLimit = 1000
)

// WithThreshold sets the minimum similarity (exclusive) for results.
// Must be within [0, 1]; out-of-range values are rejected by Search.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}

// WithLimit sets the maximum number of results to return.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		c.limit = n
	}
}

// buildSearchConfig applies search options over the defaults.
func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
