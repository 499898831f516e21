// Package embedding is a client for OpenAI-compatible embedding endpoints.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/service"
)

// Config configures the embedding client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	CacheTTL          time.Duration
	Dimensions        int
	RequestsPerMinute int
}

// Client requests embeddings over HTTP. It is safe for concurrent use and
// must be closed to stop its cache janitor.
type Client struct {
	httpClient *http.Client
	limiter    *rateLimiter
	cache      *vectorCache
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

var _ service.Embedder = (*Client)(nil)

// NewClient creates an embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", common.ErrMissingConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    newRateLimiter(cfg.RequestsPerMinute),
		cache:      newVectorCache(cfg.CacheTTL),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// HTTPClient exposes the underlying client so tests can intercept it.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Model returns the configured embedding model.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the vector size the model produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the embedding of text. Rate limiting and server errors are
// reported as retryable; other client errors are permanent.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, common.Permanent(fmt.Errorf("%w: empty embedding input", common.ErrInvalidInput))
	}
	if v, ok := c.cache.get(text); ok {
		return v, nil
	}

	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text, Dimensions: c.dimensions})
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %w", common.ErrDependencyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: embedding API", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: embedding API status %d: %s", common.ErrDependencyUnavailable, resp.StatusCode, string(payload))
	case resp.StatusCode != http.StatusOK:
		return nil, common.Permanent(fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(payload)))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, common.Permanent(fmt.Errorf("no embedding returned"))
	}

	vector := parsed.Data[0].Embedding
	if c.dimensions > 0 && len(vector) != c.dimensions {
		return nil, common.Permanent(fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), c.dimensions))
	}

	c.cache.set(text, vector)
	return vector, nil
}

// Close stops background goroutines.
func (c *Client) Close() error {
	c.cache.Close()
	return nil
}
