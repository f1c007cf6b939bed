package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ragstore/ragstore/internal/authz"
	"github.com/ragstore/ragstore/internal/embeddings"
	"github.com/ragstore/ragstore/internal/log"
)

// maxBodyBytes caps request bodies. A 3072-dimension vector serializes to
// well under 100KB, so 1MB leaves generous headroom.
const maxBodyBytes = 1 << 20

// EmbeddingStore is the store surface the handlers depend on.
type EmbeddingStore interface {
	Insert(ctx context.Context, ac authz.Context, content string, embedding []float32, metadata embeddings.Metadata) (embeddings.Record, error)
	Search(ctx context.Context, ac authz.Context, embedding []float32, opts ...embeddings.SearchOption) ([]embeddings.Match, error)
	Delete(ctx context.Context, ac authz.Context, id int64) error
	BulkDelete(ctx context.Context, ac authz.Context, filter embeddings.Metadata) (int64, error)
	Count(ctx context.Context, ac authz.Context, filter embeddings.Metadata) (int, error)
	Dimension() int
}

// Embedder turns text into a vector. Optional: a nil embedder means the API
// only accepts pre-computed vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddingHandler serves the embedding CRUD and search endpoints.
type embeddingHandler struct {
	store    EmbeddingStore
	embedder Embedder

	defaultThreshold float64
	defaultLimit     int
	maxLimit         int

	logger log.Logger
}

type insertRequest struct {
	Content   string              `json:"content"`
	Embedding []float32           `json:"embedding,omitempty"`
	Metadata  embeddings.Metadata `json:"metadata,omitempty"`
}

type insertResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
}

// insert handles POST /api/v1/embeddings. The vector may be supplied by the
// client or, when the embedder gateway is configured, computed server-side
// from the content.
func (h *embeddingHandler) insert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if req.Content == "" {
		WriteError(w, http.StatusBadRequest, "content_required", "content must not be empty", h.logger)
		return
	}

	embedding := req.Embedding
	if embedding == nil {
		if h.embedder == nil {
			WriteError(w, http.StatusBadRequest, "embedding_required",
				"no embedder configured, supply a pre-computed embedding", h.logger)
			return
		}
		var err error
		embedding, err = h.embedder.Embed(r.Context(), req.Content)
		if err != nil {
			h.logger.Error("embedding content failed", "error", err)
			WriteError(w, http.StatusBadGateway, "embedder_failed", "failed to embed content", h.logger)
			return
		}
	}

	rec, err := h.store.Insert(r.Context(), authzFromContext(r.Context()), req.Content, embedding, req.Metadata)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, insertResponse{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
	}, h.logger)
}

type searchRequest struct {
	Embedding []float32 `json:"embedding,omitempty"`
	Query     string    `json:"query,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
	Limit     *int      `json:"limit,omitempty"`
}

type matchResponse struct {
	ID         int64               `json:"id"`
	Content    string              `json:"content"`
	Metadata   embeddings.Metadata `json:"metadata"`
	Similarity float64             `json:"similarity"`
}

type searchResponse struct {
	Matches []matchResponse `json:"matches"`
	Count   int             `json:"count"`
}

// search handles POST /api/v1/search. Exactly one of embedding and query
// must be set; a query needs the embedder gateway.
func (h *embeddingHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if (req.Embedding == nil) == (req.Query == "") {
		WriteError(w, http.StatusBadRequest, "invalid_query",
			"exactly one of embedding and query must be set", h.logger)
		return
	}

	embedding := req.Embedding
	if embedding == nil {
		if h.embedder == nil {
			WriteError(w, http.StatusBadRequest, "embedding_required",
				"no embedder configured, supply a query embedding", h.logger)
			return
		}
		var err error
		embedding, err = h.embedder.Embed(r.Context(), req.Query)
		if err != nil {
			h.logger.Error("embedding query failed", "error", err)
			WriteError(w, http.StatusBadGateway, "embedder_failed", "failed to embed query", h.logger)
			return
		}
	}

	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	limit := h.defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit > h.maxLimit {
		WriteError(w, http.StatusBadRequest, "invalid_limit",
			"limit exceeds maximum of "+strconv.Itoa(h.maxLimit), h.logger)
		return
	}

	matches, err := h.store.Search(r.Context(), authzFromContext(r.Context()), embedding,
		embeddings.WithThreshold(threshold), embeddings.WithLimit(limit))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		metadata := m.Metadata
		if metadata == nil {
			metadata = embeddings.Metadata{}
		}
		out = append(out, matchResponse{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   metadata,
			Similarity: m.Similarity,
		})
	}
	WriteJSON(w, http.StatusOK, searchResponse{Matches: out, Count: len(out)}, h.logger)
}

// deleteOne handles DELETE /api/v1/embeddings/{id}. Deleting an id that does
// not exist returns 204 like a successful delete.
func (h *embeddingHandler) deleteOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "id must be an integer", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), authzFromContext(r.Context()), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type purgeRequest struct {
	Filter embeddings.Metadata `json:"filter"`
}

type purgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// purge handles POST /api/v1/embeddings/purge, bulk-deleting every record
// whose metadata contains the filter. Admin only.
func (h *embeddingHandler) purge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	deleted, err := h.store.BulkDelete(r.Context(), authzFromContext(r.Context()), req.Filter)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, purgeResponse{Deleted: deleted}, h.logger)
}

type statsResponse struct {
	Total     int `json:"total"`
	Dimension int `json:"dimension"`
}

// stats handles GET /api/v1/stats.
func (h *embeddingHandler) stats(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.Count(r.Context(), authzFromContext(r.Context()), nil)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{Total: total, Dimension: h.store.Dimension()}, h.logger)
}

// decodeBody decodes the JSON request body into dst, writing the error
// response itself. Returns false when the caller should stop.
func (h *embeddingHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return false
		}
		if errors.Is(err, embeddings.ErrInvalidMetadata) {
			WriteError(w, http.StatusBadRequest, "invalid_metadata",
				"metadata values must be strings, numbers, booleans, or nested objects", h.logger)
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return false
	}
	return true
}

// writeStoreError maps store errors to HTTP responses.
func (h *embeddingHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		WriteError(w, http.StatusForbidden, "permission_denied", "caller lacks the required capability", h.logger)
	case errors.Is(err, embeddings.ErrDimensionMismatch):
		WriteError(w, http.StatusBadRequest, "dimension_mismatch", err.Error(), h.logger)
	case errors.Is(err, embeddings.ErrInvalidThreshold):
		WriteError(w, http.StatusBadRequest, "invalid_threshold", err.Error(), h.logger)
	case errors.Is(err, embeddings.ErrInvalidLimit):
		WriteError(w, http.StatusBadRequest, "invalid_limit", err.Error(), h.logger)
	case errors.Is(err, embeddings.ErrInvalidMetadata):
		WriteError(w, http.StatusBadRequest, "invalid_metadata", err.Error(), h.logger)
	case errors.Is(err, embeddings.ErrConstraintViolation):
		WriteError(w, http.StatusBadRequest, "constraint_violation", err.Error(), h.logger)
	default:
		h.logger.Error("store operation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
