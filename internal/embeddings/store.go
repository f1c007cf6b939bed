package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/ragstore/ragstore/internal/authz"
)

// Querier defines the database operations the store depends on.
// Interfaces are defined by the consumer, not the provider, so the store can
// be tested against a mock and run against the pgx implementation in
// querier.go.
type Querier interface {
	// InsertEmbedding appends a new record and returns its identity and
	// creation timestamp.
	InsertEmbedding(ctx context.Context, arg InsertParams) (InsertedRow, error)

	// MatchEmbeddings runs the similarity search function.
	MatchEmbeddings(ctx context.Context, arg MatchParams) ([]MatchRow, error)

	// DeleteEmbedding deletes a record by id, returning the number of rows
	// removed (0 or 1).
	DeleteEmbedding(ctx context.Context, id int64) (int64, error)

	// DeleteEmbeddingsByMetadata deletes all records whose metadata contains
	// the filter document, returning the number of rows removed.
	DeleteEmbeddingsByMetadata(ctx context.Context, filter []byte) (int64, error)

	// CountEmbeddings counts all records.
	CountEmbeddings(ctx context.Context) (int64, error)

	// CountEmbeddingsByMetadata counts records whose metadata contains the
	// filter document.
	CountEmbeddingsByMetadata(ctx context.Context, filter []byte) (int64, error)
}

// InsertParams are the arguments for Querier.InsertEmbedding.
type InsertParams struct {
	Content   string
	Embedding pgvector.Vector
	Metadata  []byte
}

// InsertedRow is the identity returned by Querier.InsertEmbedding.
type InsertedRow struct {
	ID        int64
	CreatedAt pgtype.Timestamptz
}

// MatchParams are the arguments for Querier.MatchEmbeddings.
type MatchParams struct {
	QueryEmbedding pgvector.Vector
	Threshold      float64
	Limit          int32
}

// MatchRow is a raw similarity search row before metadata decoding.
type MatchRow struct {
	ID         int64
	Content    string
	Metadata   []byte
	Similarity float64
}

// Store manages the embedding table with vector search capabilities.
// Every operation takes an explicit authz.Context; there is no ambient
// permission state.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	dim     int
	logger  *slog.Logger
}

// New creates a Store for a deployment with the given vector dimension.
// dim must match the vector column width of the deployed schema; use
// VerifyDimension at startup to check.
func New(querier Querier, dim int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries: querier,
		dim:     dim,
		logger:  logger,
	}
}

// Dimension returns the store's fixed vector dimension.
func (s *Store) Dimension() int { return s.dim }

// Insert appends a new record. The caller needs the write capability.
//
// Fails with ErrDimensionMismatch when the vector width differs from the
// store dimension, and with ErrConstraintViolation when content is empty.
func (s *Store) Insert(ctx context.Context, ac authz.Context, content string, embedding []float32, metadata Metadata) (Record, error) {
	if err := ac.Require(authz.CapWrite); err != nil {
		return Record{}, err
	}
	if content == "" {
		return Record{}, fmt.Errorf("%w: content must not be empty", ErrConstraintViolation)
	}
	if len(embedding) != s.dim {
		return Record{}, fmt.Errorf("%w: got %d dimensions, store uses %d", ErrDimensionMismatch, len(embedding), s.dim)
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return Record{}, err
	}

	row, err := s.queries.InsertEmbedding(ctx, InsertParams{
		Content:   content,
		Embedding: pgvector.NewVector(embedding),
		Metadata:  metadataJSON,
	})
	if err != nil {
		return Record{}, fmt.Errorf("inserting embedding: %w", err)
	}

	s.logger.Debug("inserted embedding",
		"id", row.ID,
		"content_length", len(content),
		"principal", ac.Principal())

	return Record{
		ID:        row.ID,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt.Time,
	}, nil
}

// Search returns records whose cosine similarity to the query embedding is
// strictly above the threshold, ordered by descending similarity with ties
// broken by ascending id, capped at the configured limit. Search is a pure
// read. The caller needs the read capability.
//
// Under the HNSW index the shortlist is approximate: a record whose true
// similarity exceeds the threshold by less than the index's recall tolerance
// may be missed. That trade-off is configured via hnsw_ef_search, not
// handled here.
func (s *Store) Search(ctx context.Context, ac authz.Context, embedding []float32, opts ...SearchOption) ([]Match, error) {
	if err := ac.Require(authz.CapRead); err != nil {
		return nil, err
	}

	cfg := buildSearchConfig(opts)
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: got %d dimensions, store uses %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	if cfg.threshold < 0 || cfg.threshold > 1 {
		return nil, fmt.Errorf("%w: %g out of range [0, 1]", ErrInvalidThreshold, cfg.threshold)
	}
	if cfg.limit < 1 || cfg.limit > maxLimit {
		return nil, fmt.Errorf("%w: %d out of range [1, %d]", ErrInvalidLimit, cfg.limit, maxLimit)
	}

	rows, err := s.queries.MatchEmbeddings(ctx, MatchParams{
		QueryEmbedding: pgvector.NewVector(embedding),
		Threshold:      cfg.threshold,
		Limit:          int32(cfg.limit),
	})
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		metadata, err := unmarshalMetadata(row.Metadata)
		if err != nil {
			s.logger.Warn("skipping row with undecodable metadata", "id", row.ID, "error", err)
			continue
		}
		matches = append(matches, Match{
			ID:         row.ID,
			Content:    row.Content,
			Metadata:   metadata,
			Similarity: row.Similarity,
		})
	}
	return matches, nil
}

// Delete removes a record by id. Deleting a nonexistent id is a no-op, not
// an error. The caller needs the write capability.
func (s *Store) Delete(ctx context.Context, ac authz.Context, id int64) error {
	if err := ac.Require(authz.CapWrite); err != nil {
		return err
	}

	deleted, err := s.queries.DeleteEmbedding(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting embedding %d: %w", id, err)
	}

	if deleted == 0 {
		s.logger.Debug("delete of nonexistent embedding", "id", id)
		return nil
	}
	s.logger.Debug("deleted embedding", "id", id, "principal", ac.Principal())
	return nil
}

// BulkDelete removes every record whose metadata contains filter. A nil or
// empty filter would match the whole table, so it is rejected with
// ErrInvalidMetadata; use the schema down-migration for a full reset.
// The caller needs the admin capability.
func (s *Store) BulkDelete(ctx context.Context, ac authz.Context, filter Metadata) (int64, error) {
	if err := ac.Require(authz.CapAdmin); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, fmt.Errorf("%w: bulk delete requires a non-empty filter", ErrInvalidMetadata)
	}

	filterJSON, err := marshalMetadata(filter)
	if err != nil {
		return 0, err
	}

	deleted, err := s.queries.DeleteEmbeddingsByMetadata(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("bulk deleting embeddings: %w", err)
	}

	s.logger.Info("bulk deleted embeddings",
		"deleted", deleted,
		"filter_keys", filter.Keys(),
		"principal", ac.Principal())
	return deleted, nil
}

// Count returns the number of records matching the filter; a nil or empty
// filter counts the whole store. The caller needs the read capability.
func (s *Store) Count(ctx context.Context, ac authz.Context, filter Metadata) (int, error) {
	if err := ac.Require(authz.CapRead); err != nil {
		return 0, err
	}

	var (
		count int64
		err   error
	)
	if len(filter) > 0 {
		var filterJSON []byte
		filterJSON, err = marshalMetadata(filter)
		if err != nil {
			return 0, err
		}
		count, err = s.queries.CountEmbeddingsByMetadata(ctx, filterJSON)
	} else {
		count, err = s.queries.CountEmbeddings(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("embedding count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}
