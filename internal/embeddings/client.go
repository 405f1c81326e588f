// Package embeddings provides vector embedding generation and the
// similarity math used by the memory and knowledge stores.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/kestrelworks/kestrel/internal/httpkit"
)

// ErrDimensionMismatch is returned when the embedding endpoint produces a
// vector whose length differs from the configured dimension. This is a
// configuration error: storing or querying with such a vector would
// silently corrupt similarity search, so callers must treat it as fatal.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder generates fixed-dimension vectors for text.
type Embedder interface {
	// Embed returns the vector for text. The result length always equals
	// Dimension; a provider disagreement surfaces as ErrDimensionMismatch.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the configured vector size.
	Dimension() int
}

// Client generates embeddings via an OpenAI-compatible /embeddings endpoint.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// Config for the embedding client.
type Config struct {
	BaseURL   string // endpoint base including /v1
	APIKey    string
	Model     string // e.g. "nvidia/nv-embedqa-e5-v5"
	Dimension int    // expected vector length, e.g. 1024
}

// New creates an embedding client.
func New(cfg Config) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30 * time.Second),
		),
	}
}

// Dimension returns the configured vector size.
func (c *Client) Dimension() int { return c.dimension }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed creates an embedding for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{
		Model: c.model,
		Input: []string{text},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("embedding endpoint returned status %d: %s", resp.StatusCode, errBody)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	vec := embedResp.Data[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: model %q returned %d values, configured dimension is %d",
			ErrDimensionMismatch, c.model, len(vec), c.dimension)
	}

	return vec, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
