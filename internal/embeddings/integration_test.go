package embeddings_test

import (
	"context"
	"math"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstore/ragstore/internal/authz"
	"github.com/ragstore/ragstore/internal/config"
	"github.com/ragstore/ragstore/internal/embeddings"
	"github.com/ragstore/ragstore/internal/testutil"
)

// unitVector builds a 1536-dimension unit vector whose cosine similarity to
// axisVector() is exactly cos. Only the first two components are nonzero.
func unitVector(cos float64) []float32 {
	v := make([]float32, config.DimSmall)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

// axisVector is the query used throughout: similarity to it is just the
// first component of a unitVector.
func axisVector() []float32 {
	v := make([]float32, config.DimSmall)
	v[0] = 1
	return v
}

func setupIntegrationStore(t *testing.T) (*embeddings.Store, *embeddings.PGQuerier) {
	t.Helper()

	dbc := testutil.SetupTestDB(t)
	querier := embeddings.NewPGQuerier(dbc.Pool, 0)
	store := embeddings.New(querier, config.DimSmall, testutil.DiscardLogger())
	return store, querier
}

func TestStore_InsertAndSearch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	rec, err := store.Insert(ctx, ac, "retrieval chunk about graphs", unitVector(1), embeddings.Metadata{
		"source_type": embeddings.String("file"),
		"chunk_index": embeddings.Number(0),
	})
	require.NoError(t, err)
	assert.Positive(t, rec.ID, "database should assign an identity")
	assert.False(t, rec.CreatedAt.IsZero(), "database should assign a timestamp")

	matches, err := store.Search(ctx, ac, axisVector())
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, rec.ID, matches[0].ID)
	assert.Equal(t, "retrieval chunk about graphs", matches[0].Content)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4, "identical vectors should have similarity 1")

	source, _ := matches[0].Metadata["source_type"].StringValue()
	assert.Equal(t, "file", source)
	idx, _ := matches[0].Metadata["chunk_index"].NumberValue()
	assert.Equal(t, 0.0, idx)
}

func TestStore_SearchOrdering_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	// One clear winner plus two records equidistant from the query. The tie
	// must break by ascending id, so insertion order decides.
	best, err := store.Insert(ctx, ac, "similarity 0.9", unitVector(0.9), nil)
	require.NoError(t, err)
	tieFirst, err := store.Insert(ctx, ac, "similarity 0.75 (older)", unitVector(0.75), nil)
	require.NoError(t, err)
	tieSecond, err := store.Insert(ctx, ac, "similarity 0.75 (newer)", unitVector(0.75), nil)
	require.NoError(t, err)
	require.Less(t, tieFirst.ID, tieSecond.ID)

	matches, err := store.Search(ctx, ac, axisVector(), embeddings.WithThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, best.ID, matches[0].ID)
	assert.Equal(t, tieFirst.ID, matches[1].ID)
	assert.Equal(t, tieSecond.ID, matches[2].ID)

	assert.InDelta(t, 0.9, matches[0].Similarity, 1e-4)
	assert.InDelta(t, 0.75, matches[1].Similarity, 1e-4)
	assert.InDelta(t, 0.75, matches[2].Similarity, 1e-4)
}

func TestStore_SearchThreshold_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	_, err := store.Insert(ctx, ac, "dissimilar record", unitVector(0.5), nil)
	require.NoError(t, err)

	// 0.5 is not strictly above the default threshold of 0.7.
	matches, err := store.Search(ctx, ac, axisVector())
	require.NoError(t, err)
	assert.Empty(t, matches, "records at or below the threshold must be excluded")

	// Lowering the threshold brings the record back.
	matches, err = store.Search(ctx, ac, axisVector(), embeddings.WithThreshold(0.3))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestStore_SearchLimit_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	similarities := []float64{0.95, 0.9, 0.85, 0.8, 0.75}
	for _, s := range similarities {
		_, err := store.Insert(ctx, ac, "record", unitVector(s), nil)
		require.NoError(t, err)
	}

	matches, err := store.Search(ctx, ac, axisVector(), embeddings.WithThreshold(0.5), embeddings.WithLimit(3))
	require.NoError(t, err)
	require.Len(t, matches, 3, "limit should cap the result set")

	// The cap keeps the highest-ranked records.
	assert.InDelta(t, 0.95, matches[0].Similarity, 1e-4)
	assert.InDelta(t, 0.9, matches[1].Similarity, 1e-4)
	assert.InDelta(t, 0.85, matches[2].Similarity, 1e-4)
}

func TestStore_Delete_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	rec, err := store.Insert(ctx, ac, "to be deleted", unitVector(1), nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ac, rec.ID))

	matches, err := store.Search(ctx, ac, axisVector())
	require.NoError(t, err)
	assert.Empty(t, matches, "deleted records must not appear in results")

	// Deleting an id that no longer exists is a no-op.
	assert.NoError(t, store.Delete(ctx, ac, rec.ID))
}

func TestStore_BulkDeleteAndCount_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupIntegrationStore(t)
	ac := authz.Permissive()

	fileMD := embeddings.Metadata{"source_type": embeddings.String("file")}
	webMD := embeddings.Metadata{"source_type": embeddings.String("web")}

	for range 3 {
		_, err := store.Insert(ctx, ac, "file chunk", unitVector(0.9), fileMD)
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, ac, "web chunk", unitVector(0.9), webMD)
	require.NoError(t, err)

	count, err := store.Count(ctx, ac, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = store.Count(ctx, ac, fileMD)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	deleted, err := store.BulkDelete(ctx, ac, fileMD)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err = store.Count(ctx, ac, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the web chunk should remain")
}

func TestPGQuerier_ErrorMapping_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	_, querier := setupIntegrationStore(t)

	// A wrong-width vector reaches the database only when store validation is
	// bypassed; the constraint still holds there.
	_, err := querier.InsertEmbedding(ctx, embeddings.InsertParams{
		Content:   "short vector",
		Embedding: pgvector.NewVector([]float32{1, 0, 0}),
		Metadata:  []byte(`{}`),
	})
	assert.ErrorIs(t, err, embeddings.ErrDimensionMismatch)

	_, err = querier.InsertEmbedding(ctx, embeddings.InsertParams{
		Content:   "",
		Embedding: pgvector.NewVector(axisVector()),
		Metadata:  []byte(`{}`),
	})
	assert.ErrorIs(t, err, embeddings.ErrConstraintViolation)
}

func TestPGQuerier_VerifyDimension_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	_, querier := setupIntegrationStore(t)

	assert.NoError(t, querier.VerifyDimension(ctx, config.DimSmall))

	err := querier.VerifyDimension(ctx, config.DimLarge)
	assert.ErrorIs(t, err, embeddings.ErrDimensionMismatch)
}

func TestPGQuerier_EfSearch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbc := testutil.SetupTestDB(t)

	// A tuned querier runs the search inside a transaction with SET LOCAL;
	// results must match the untuned path on a small data set.
	tuned := embeddings.NewPGQuerier(dbc.Pool, 80)
	store := embeddings.New(tuned, config.DimSmall, testutil.DiscardLogger())
	ac := authz.Permissive()

	rec, err := store.Insert(ctx, ac, "tuned search target", unitVector(0.9), nil)
	require.NoError(t, err)

	matches, err := store.Search(ctx, ac, axisVector(), embeddings.WithThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.ID, matches[0].ID)
}
