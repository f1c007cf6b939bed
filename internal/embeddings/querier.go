package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL executed by the pgx querier. Ordering and threshold semantics live in
// match_lightrag_embeddings (db/migrations) so every caller of the function
// observes the same contract.
const (
	insertEmbeddingSQL = `
INSERT INTO lightrag_embeddings (content, embedding, metadata)
VALUES ($1, $2, $3)
RETURNING id, created_at`

	matchEmbeddingsSQL = `
SELECT id, content, metadata, similarity
FROM match_lightrag_embeddings($1, $2, $3)`

	deleteEmbeddingSQL = `
DELETE FROM lightrag_embeddings WHERE id = $1`

	deleteByMetadataSQL = `
DELETE FROM lightrag_embeddings WHERE metadata @> $1`

	countEmbeddingsSQL = `
SELECT COUNT(*) FROM lightrag_embeddings`

	countByMetadataSQL = `
SELECT COUNT(*) FROM lightrag_embeddings WHERE metadata @> $1`

	columnDimensionSQL = `
SELECT atttypmod
FROM pg_attribute
WHERE attrelid = 'lightrag_embeddings'::regclass
  AND attname = 'embedding'`
)

// PGQuerier implements Querier against PostgreSQL + pgvector through a pgx
// connection pool.
type PGQuerier struct {
	pool     *pgxpool.Pool
	efSearch int
}

var _ Querier = (*PGQuerier)(nil)

// NewPGQuerier creates a querier on the given pool. efSearch > 0 sets
// hnsw.ef_search for each similarity query, trading latency for recall;
// 0 keeps the engine default.
func NewPGQuerier(pool *pgxpool.Pool, efSearch int) *PGQuerier {
	return &PGQuerier{pool: pool, efSearch: efSearch}
}

// InsertEmbedding appends a row and returns its identity.
func (q *PGQuerier) InsertEmbedding(ctx context.Context, arg InsertParams) (InsertedRow, error) {
	var row InsertedRow
	err := q.pool.QueryRow(ctx, insertEmbeddingSQL, arg.Content, arg.Embedding, arg.Metadata).
		Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		return InsertedRow{}, mapPgError(err)
	}
	return row, nil
}

// MatchEmbeddings runs the similarity search function. When ef_search is
// configured the query runs in a transaction so SET LOCAL scopes the setting
// to this query alone.
func (q *PGQuerier) MatchEmbeddings(ctx context.Context, arg MatchParams) ([]MatchRow, error) {
	var rows pgx.Rows
	var err error

	if q.efSearch > 0 {
		var tx pgx.Tx
		tx, err = q.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("beginning search transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// ef_search comes from validated config, never from request input.
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", q.efSearch)); err != nil {
			return nil, fmt.Errorf("setting hnsw.ef_search: %w", err)
		}
		rows, err = tx.Query(ctx, matchEmbeddingsSQL, arg.QueryEmbedding, arg.Threshold, arg.Limit)
	} else {
		rows, err = q.pool.Query(ctx, matchEmbeddingsSQL, arg.QueryEmbedding, arg.Threshold, arg.Limit)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		var row MatchRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// DeleteEmbedding removes a row by id.
func (q *PGQuerier) DeleteEmbedding(ctx context.Context, id int64) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteEmbeddingSQL, id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteEmbeddingsByMetadata removes rows whose metadata contains filter.
func (q *PGQuerier) DeleteEmbeddingsByMetadata(ctx context.Context, filter []byte) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteByMetadataSQL, filter)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

// CountEmbeddings counts all rows.
func (q *PGQuerier) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, countEmbeddingsSQL).Scan(&count); err != nil {
		return 0, mapPgError(err)
	}
	return count, nil
}

// CountEmbeddingsByMetadata counts rows whose metadata contains filter.
func (q *PGQuerier) CountEmbeddingsByMetadata(ctx context.Context, filter []byte) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, countByMetadataSQL, filter).Scan(&count); err != nil {
		return 0, mapPgError(err)
	}
	return count, nil
}

// VerifyDimension checks that the deployed vector column width matches dim.
// Changing the dimension requires recreating the store, so a mismatch is a
// startup-time hard error rather than a per-request surprise.
func (q *PGQuerier) VerifyDimension(ctx context.Context, dim int) error {
	var typmod int
	if err := q.pool.QueryRow(ctx, columnDimensionSQL).Scan(&typmod); err != nil {
		return fmt.Errorf("reading embedding column dimension: %w", err)
	}
	// For the vector type, atttypmod carries the declared dimension.
	if typmod != dim {
		return fmt.Errorf("%w: schema has vector(%d), configuration expects %d",
			ErrDimensionMismatch, typmod, dim)
	}
	return nil
}

// PostgreSQL error codes mapped to store sentinel errors.
const (
	pgCodeNotNullViolation = "23502"
	pgCodeCheckViolation   = "23514"
	pgCodeDataException    = "22000"
)

// mapPgError translates PostgreSQL errors into the store's sentinel errors.
// The store validates inputs before they reach the database, so this mapping
// covers rows written by other clients of the same schema.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgCodeNotNullViolation, pgCodeCheckViolation:
		return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.Message)
	case pgCodeDataException:
		// pgvector reports vector width mismatches as a data exception.
		if strings.Contains(pgErr.Message, "dimensions") {
			return fmt.Errorf("%w: %s", ErrDimensionMismatch, pgErr.Message)
		}
	}
	return err
}
