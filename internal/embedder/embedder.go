// Package embedder turns text into fixed-dimension embedding vectors through
// an OpenAI-compatible embeddings endpoint.
//
// The HTTP gateway is optional: when no API key is configured the service
// accepts pre-computed vectors only and this package is never constructed.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ragstore/ragstore/internal/log"
)

// OpenRouterBaseURL is the default OpenAI-compatible endpoint.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

const defaultTimeout = 30 * time.Second

var (
	// ErrEmptyInput indicates a request with no text to embed.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrBadVector indicates the upstream returned vectors that do not match
	// the configured dimension or input count.
	ErrBadVector = errors.New("malformed embedding response")
)

// Embedder converts text into embedding vectors. Implementations must return
// vectors of a single fixed dimension.
type Embedder interface {
	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is an Embedder backed by an OpenAI-compatible /embeddings endpoint.
type Client struct {
	apiKey     string
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

var _ Embedder = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the OpenRouter endpoint, mainly for tests and
// self-hosted gateways.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given model and vector dimension. Every
// returned vector is checked against dim before it reaches a caller.
func New(apiKey, model string, dim int, logger log.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedder API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedder model is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedder dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		dim:        dim,
		baseURL:    OpenRouterBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order. The upstream
// may reorder results; they are restored by index.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
	}

	var resp embeddingResponse
	err := c.makeRequest(ctx, embeddingRequest{Model: c.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrBadVector, len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if d.Index != i {
			return nil, fmt.Errorf("%w: missing vector for input %d", ErrBadVector, i)
		}
		if len(d.Embedding) != c.dim {
			return nil, fmt.Errorf("%w: got %d dimensions, expected %d", ErrBadVector, len(d.Embedding), c.dim)
		}
		vectors[i] = d.Embedding
	}

	c.logger.Debug("embedded texts", "count", len(texts), "model", c.model)
	return vectors, nil
}

// makeRequest posts body to the embeddings endpoint and unmarshals the
// response into result.
func (c *Client) makeRequest(ctx context.Context, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("embeddings API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
