package commerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, opts ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Endpoint:    url,
		AccessToken: "test-token",
		Timeout:     2 * time.Second,
		BaseDelay:   time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestExecute_Success(t *testing.T) {
	var gotToken, gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-Shopify-Storefront-Access-Token"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody.Store(body)
		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"packon"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Execute(context.Background(), "query { shop { name } }", nil, Fresh())
	require.NoError(t, err)

	assert.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"shop":{"name":"packon"}}`, string(resp.Data))
	assert.Equal(t, "test-token", gotToken.Load())

	body := gotBody.Load().(map[string]any)
	assert.Equal(t, "query { shop { name } }", body["query"])
}

func TestExecute_RetryCeilingOn429(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Execute(context.Background(), "query { shop { name } }", nil, Fresh())

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load(), "429 must be attempted exactly MaxAttempts times")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, CategoryServer, reqErr.Category)
	assert.Equal(t, http.StatusTooManyRequests, reqErr.Status)
}

func TestExecute_BackoffDoubles(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base := 40 * time.Millisecond
	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.BaseDelay = base })

	_, err := c.Execute(context.Background(), "q", nil, Fresh())
	require.Error(t, err)
	require.Len(t, stamps, 3)

	// First retry waits ~base, second ~2*base.
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), base)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 2*base)
}

func TestExecute_RetryAfterOverridesBackoff(t *testing.T) {
	var attempts atomic.Int32
	var gap time.Duration
	var first time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			gap = time.Since(first)
			_, _ = w.Write([]byte(`{"data":{}}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Execute(context.Background(), "q", nil, Fresh())
	require.NoError(t, err)

	assert.Equal(t, int32(2), attempts.Load())
	assert.GreaterOrEqual(t, gap, time.Second, "Retry-After must override the computed backoff")
}

func TestExecute_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Execute(context.Background(), "q", nil, Fresh())

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "4xx application errors must not be retried")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, CategoryServer, reqErr.Category)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
}

func TestExecute_TimeoutCategory(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Timeout = 30 * time.Millisecond
		cfg.MaxAttempts = 2
	})

	_, err := c.Execute(context.Background(), "q", nil, Fresh())
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, CategoryTimeout, reqErr.Category)
}

func TestExecute_NetworkErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxAttempts = 2 })
	_, err := c.Execute(context.Background(), "q", nil, Fresh())

	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, CategoryNetwork, reqErr.Category)
}

func TestExecute_GraphQLErrorsSurfacedWithPartialData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {"productByHandle": null},
			"errors": [{"message": "field deprecated", "path": ["productByHandle"]}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Execute(context.Background(), "q", nil, Fresh())

	require.NoError(t, err, "GraphQL errors are results, not call failures")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "field deprecated", resp.Errors[0].Message)
	assert.JSONEq(t, `{"productByHandle":null}`, string(resp.Data))
}

func TestExecute_CacheableServedFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"n":1}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	policy := CacheFor(time.Minute, "products")

	for range 3 {
		_, err := c.Execute(context.Background(), "q", map[string]any{"handle": "box"}, policy)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	// Different variables miss the cache.
	_, err := c.Execute(context.Background(), "q", map[string]any{"handle": "bag"}, policy)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// Invalidation by tag forces a refetch.
	c.Invalidate("products")
	_, err = c.Execute(context.Background(), "q", map[string]any{"handle": "box"}, policy)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_CacheableFlightSurvivesCallerCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte(`{"data":{"n":1}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
		close(release)
	}()

	resp, err := c.Execute(ctx, "q", nil, CacheFor(time.Minute))
	require.NoError(t, err, "a canceled caller must not fail the shared flight")
	assert.Empty(t, resp.Errors)

	// The response completed and was cached for later callers.
	_, ok := c.cache.get("q", time.Now())
	assert.True(t, ok)
}

func TestExecute_FreshNeverCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"n":1}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for range 3 {
		_, err := c.Execute(context.Background(), "q", nil, Fresh())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_ErroredResponseNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"boom"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	policy := CacheFor(time.Minute)

	for range 2 {
		resp, err := c.Execute(context.Background(), "q", nil, policy)
		require.NoError(t, err)
		require.Len(t, resp.Errors, 1)
	}
	assert.Equal(t, int32(2), calls.Load(), "responses carrying errors must not be cached")
}

func TestQuery_DecodesTypedData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"packon"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	type payload struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	data, gqlErrs, err := Query[payload](context.Background(), c, "q", nil, Fresh())
	require.NoError(t, err)
	assert.Empty(t, gqlErrs)
	assert.Equal(t, "packon", data.Shop.Name)
}

func TestQuery_NullDataYieldsZeroValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	type payload struct {
		Cart *struct{} `json:"cart"`
	}
	data, _, err := Query[payload](context.Background(), c, "q", nil, Fresh())
	require.NoError(t, err)
	assert.Nil(t, data.Cart)
}
