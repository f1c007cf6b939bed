// Package embeddings implements the vector-similarity retrieval contract on
// PostgreSQL + pgvector.
//
// # Overview
//
// The package manages a single append-only table of embedding records and a
// SQL similarity function over it:
//
//	lightrag_embeddings:
//	    id          BIGINT identity (never reused)
//	    content     TEXT NOT NULL
//	    embedding   vector(N)        -- N fixed per deployment: 1536 or 3072
//	    metadata    JSONB
//	    created_at  TIMESTAMPTZ
//
//	match_lightrag_embeddings(query_embedding, match_threshold, match_count)
//	    -> (id, content, metadata, similarity)
//
// Similarity is cosine: 1 - (embedding <=> query). Only rows strictly above
// the threshold are returned, ordered by descending similarity with ties
// broken by ascending id, capped at the limit.
//
// # Store operations
//
//	Insert(ctx, authz, content, embedding, metadata) - append a record
//	Search(ctx, authz, embedding, opts...)           - ranked similarity search
//	Delete(ctx, authz, id)                           - idempotent point delete
//	BulkDelete(ctx, authz, filter)                   - delete by metadata filter
//	Count(ctx, authz, filter)                        - record counts
//
// Every operation takes an explicit authz.Context. The reference schema's
// allow-all row-level security is deliberately not reproduced; capability
// checks happen in the store, visible at each call site.
//
// # Dimensionality
//
// All vectors in a store share one dimension for the lifetime of the store.
// Insert and Search fail with ErrDimensionMismatch on any other width, and
// PGQuerier.VerifyDimension fails startup when the configuration disagrees
// with the deployed schema. Changing dimensions means destroying and
// recreating the store.
//
// # Consistency
//
// Writes are transactional per record. The HNSW index is maintained on the
// write path by PostgreSQL, but a search may observe a snapshot that lags
// the newest write, and approximate shortlisting may miss rows whose true
// similarity is within the index's recall tolerance of the threshold. Both
// relaxations are inherited from the underlying engine and tunable via
// hnsw_ef_search.
package embeddings
