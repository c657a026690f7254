// Package commerce implements the single entry point for all requests to the
// remote commerce platform's GraphQL API. Every catalog read and cart mutation
// in the application funnels through Client.Execute, which applies the request
// timeout, retry with exponential backoff, and the per-operation cache policy.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultAPIVersion  = "2024-01"
	defaultTimeout     = 8 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond

	accessTokenHeader = "X-Shopify-Storefront-Access-Token"
)

// Category classifies a terminal request failure for callers that want to
// drive user-facing messaging without inspecting transport errors.
type Category string

const (
	CategoryTimeout Category = "timeout"
	CategoryNetwork Category = "network"
	CategoryServer  Category = "server"
)

// RequestError is returned when a request fails after exhausting retries, or
// immediately for failures that must not be retried.
type RequestError struct {
	Category Category
	Status   int // last HTTP status, 0 for transport-level failures
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("commerce request failed (%s, status %d): %v", e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("commerce request failed (%s): %v", e.Category, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// GraphQLError mirrors one entry of the GraphQL response errors array.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Response is a decoded GraphQL response envelope. Data may be present even
// when Errors is non-empty; the caller decides whether partial data is usable.
type Response struct {
	Data   json.RawMessage
	Errors []GraphQLError
}

// Config configures a Client.
type Config struct {
	// Domain is the shop domain, e.g. "my-shop.myshopify.com".
	Domain string
	// AccessToken is the static storefront access token sent on every request.
	AccessToken string
	// APIVersion selects the versioned API path segment. Defaults to 2024-01.
	APIVersion string
	// Endpoint overrides the URL derived from Domain and APIVersion.
	// Intended for tests pointing at a local server.
	Endpoint string
	// HTTPClient is the transport used for requests. Defaults to a plain
	// http.Client; production wiring passes one with an otelhttp transport.
	HTTPClient *http.Client

	// Timeout bounds each individual attempt, not the whole operation.
	Timeout time.Duration
	// MaxAttempts is the total attempt ceiling including the first request.
	MaxAttempts int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
}

// Client executes GraphQL operations against the commerce API.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client

	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration

	cache *cache
	group singleflight.Group
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Domain == "" && cfg.Endpoint == "" {
		return nil, errors.New("commerce: domain is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("commerce: access token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", cfg.Domain, cfg.APIVersion)
	}

	return &Client{
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		http:        cfg.HTTPClient,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		cache:       newCache(),
	}, nil
}

// Policy selects caching behavior for a single operation. The zero value (or
// Fresh) bypasses the cache entirely; CacheFor stores clean responses for a
// bounded lifetime under invalidation tags.
type Policy struct {
	maxAge time.Duration
	tags   []string
}

// Fresh returns the always-fresh policy. Cart operations and paginated
// variant reads use it so state is never served stale.
func Fresh() Policy { return Policy{} }

// CacheFor returns a policy that caches error-free responses for maxAge.
// All tags are recorded for later targeted invalidation.
func CacheFor(maxAge time.Duration, tags ...string) Policy {
	return Policy{maxAge: maxAge, tags: tags}
}

// Invalidate drops every cached response recorded under tag.
func (c *Client) Invalidate(tag string) {
	c.cache.invalidate(tag)
}

// Execute runs one GraphQL operation under the given cache policy. It never
// panics and never returns a raw transport error: terminal failures are
// *RequestError values with a human-readable category.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, p Policy) (*Response, error) {
	if p.maxAge <= 0 {
		return c.do(ctx, query, variables)
	}

	key, err := cacheKey(query, variables)
	if err != nil {
		return nil, errors.Wrap(err, "cache key")
	}
	if resp, ok := c.cache.get(key, time.Now()); ok {
		return resp, nil
	}

	// Collapse concurrent identical reads into a single remote call. The
	// flight runs detached from the first caller's cancellation so one
	// impatient caller cannot fail the peers sharing its result; per-attempt
	// timeouts still bound the work.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := c.do(flightCtx, query, variables)
		if err == nil && len(resp.Errors) == 0 {
			c.cache.put(key, resp, p.maxAge, p.tags, time.Now())
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// do runs the retry loop: up to maxAttempts attempts, exponential backoff
// starting at baseDelay, Retry-After override when the server provides one.
func (c *Client) do(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(requestBody{Query: query, Variables: variables})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	lg := zctx.From(ctx)

	var last *attemptFailure
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			if last.retryAfter > 0 {
				delay = last.retryAfter
			}
			lg.Warn("Retrying commerce request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("delay", delay),
				zap.String("category", string(last.Category)),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, last.RequestError
			}
		}

		resp, fail := c.attempt(ctx, body)
		if fail == nil {
			if len(resp.Errors) > 0 {
				msgs := make([]string, len(resp.Errors))
				for i, e := range resp.Errors {
					msgs[i] = e.Message
				}
				lg.Error("Commerce GraphQL errors", zap.Strings("errors", msgs))
			}
			return resp, nil
		}
		if !fail.retryable {
			return nil, fail.RequestError
		}
		last = fail
	}

	lg.Error("Commerce request failed after all attempts",
		zap.Int("attempts", c.maxAttempts),
		zap.String("category", string(last.Category)),
		zap.Error(last.Err),
	)
	return nil, last.RequestError
}

// attemptFailure carries retry metadata alongside the caller-visible error.
type attemptFailure struct {
	*RequestError
	retryable  bool
	retryAfter time.Duration
}

// attempt performs a single bounded HTTP round trip.
func (c *Client) attempt(ctx context.Context, body []byte) (*Response, *attemptFailure) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &attemptFailure{
			RequestError: &RequestError{Category: CategoryNetwork, Err: err},
		}
	}
	req.Header.Set(accessTokenHeader, c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		category := CategoryNetwork
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			category = CategoryTimeout
		}
		return nil, &attemptFailure{
			RequestError: &RequestError{Category: category, Err: err},
			retryable:    true,
		}
	}
	defer res.Body.Close()

	// Rate limits and server errors are transient: retry with backoff,
	// honoring an explicit Retry-After when the platform supplies one.
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return nil, &attemptFailure{
			RequestError: &RequestError{
				Category: CategoryServer,
				Status:   res.StatusCode,
				Err:      errors.Errorf("unexpected status %d", res.StatusCode),
			},
			retryable:  true,
			retryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
		}
	}

	// Remaining non-2xx statuses are application errors (bad query, bad
	// credentials). Retrying cannot help.
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &attemptFailure{
			RequestError: &RequestError{
				Category: CategoryServer,
				Status:   res.StatusCode,
				Err:      errors.Errorf("unexpected status %d", res.StatusCode),
			},
		}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &attemptFailure{
			RequestError: &RequestError{Category: CategoryNetwork, Err: errors.Wrap(err, "read body")},
			retryable:    true,
		}
	}

	resp, err := decodeEnvelope(raw)
	if err != nil {
		return nil, &attemptFailure{
			RequestError: &RequestError{
				Category: CategoryServer,
				Status:   res.StatusCode,
				Err:      err,
			},
		}
	}
	return resp, nil
}

// parseRetryAfter interprets the header as whole seconds; malformed or absent
// values yield zero, which means "use computed backoff".
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Query executes an operation and decodes the data payload into T. A null or
// absent data payload leaves T at its zero value, so missing entities decode
// to nil pointers rather than failing.
func Query[T any](ctx context.Context, c *Client, query string, variables map[string]any, p Policy) (T, []GraphQLError, error) {
	var out T
	resp, err := c.Execute(ctx, query, variables, p)
	if err != nil {
		return out, nil, err
	}
	if len(resp.Data) > 0 && !bytes.Equal(resp.Data, []byte("null")) {
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return out, resp.Errors, errors.Wrap(err, "decode data")
		}
	}
	return out, resp.Errors, nil
}

// cacheKey derives a stable cache key from the operation text and variables.
// json.Marshal sorts map keys, so equal variable sets produce equal keys.
func cacheKey(query string, variables map[string]any) (string, error) {
	if len(variables) == 0 {
		return query, nil
	}
	vars, err := json.Marshal(variables)
	if err != nil {
		return "", errors.Wrap(err, "encode variables")
	}
	return query + "\x00" + string(vars), nil
}
