package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "https://embeddings.test/v1/embeddings"

func newMockedClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg.BaseURL = "https://embeddings.test/v1/"
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mock := httpmock.NewMockTransport()
	client.HTTPClient().Transport = mock
	return client, mock
}

func TestClient_Embed(t *testing.T) {
	client, mock := newMockedClient(t, Config{APIKey: "sk-test", Dimensions: 3})

	mock.RegisterResponder(http.MethodPost, endpoint, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
		var body embeddingRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)
		assert.Equal(t, "EDISON amount:medium", body.Input)
		assert.Equal(t, 3, body.Dimensions)
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"model": "text-embedding-3-small",
			"data":  []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}}},
		})
	})

	vec, err := client.Embed(context.Background(), "EDISON amount:medium")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	// identical text is served from cache
	_, err = client.Embed(context.Background(), "EDISON amount:medium")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestClient_EmbedErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		retryable bool
		sentinel  error
	}{
		{
			name:      "rate limited",
			responder: httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"slow down"}`),
			retryable: true,
			sentinel:  common.ErrRateLimit,
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"),
			retryable: true,
			sentinel:  common.ErrDependencyUnavailable,
		},
		{
			name:      "bad request is permanent",
			responder: httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"bad input"}`),
		},
		{
			name:      "wrong dimensions is permanent",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"data":[{"index":0,"embedding":[1,2]}]}`),
		},
		{
			name:      "empty data is permanent",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"data":[]}`),
		},
		{
			name:      "connection failure",
			responder: httpmock.NewErrorResponder(assert.AnError),
			retryable: true,
			sentinel:  common.ErrDependencyUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockedClient(t, Config{Dimensions: 3})
			mock.RegisterResponder(http.MethodPost, endpoint, tt.responder)

			_, err := client.Embed(context.Background(), "TEXT")
			require.Error(t, err)
			assert.Equal(t, tt.retryable, common.IsRetryable(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestClient_RetriedThroughPolicy(t *testing.T) {
	client, mock := newMockedClient(t, Config{Dimensions: 2})
	mock.RegisterResponder(http.MethodPost, endpoint,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down").
			Then(httpmock.NewStringResponder(http.StatusOK, `{"data":[{"index":0,"embedding":[0.5,0.5]}]}`)))

	opts := service.NetworkRetry("embed", time.Second)
	opts.Sleep = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	var vec []float32
	err := common.WithRetry(context.Background(), func(ctx context.Context) error {
		v, err := client.Embed(ctx, "TEXT")
		vec = v
		return err
	}, opts)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestClient_RejectsEmptyInput(t *testing.T) {
	client, mock := newMockedClient(t, Config{})

	_, err := client.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.False(t, common.IsRetryable(err))
	assert.Zero(t, mock.GetTotalCallCount())
}

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestCache_Expiry(t *testing.T) {
	cache := newVectorCache(20 * time.Millisecond)
	defer cache.Close()

	cache.set("a", []float32{1})
	v, ok := cache.get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, v)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.get("a")
	assert.False(t, ok)
}

func TestCache_Disabled(t *testing.T) {
	cache := newVectorCache(-1)
	defer cache.Close()

	cache.set("a", []float32{1})
	_, ok := cache.get("a")
	assert.False(t, ok)
	assert.Zero(t, cache.size())
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst up to capacity then waits", func(t *testing.T) {
		now := time.Now()
		rl := newRateLimiter(60)
		rl.now = func() time.Time { return now }
		rl.lastRefill = now

		for i := 0; i < 60; i++ {
			assert.Zero(t, rl.reserve())
		}
		assert.InDelta(t, float64(time.Second), float64(rl.reserve()), float64(time.Millisecond))

		now = now.Add(2 * time.Second)
		assert.Zero(t, rl.reserve())
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := newRateLimiter(1)
		require.NoError(t, rl.wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := rl.wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
