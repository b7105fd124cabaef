package routeapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gogama/httpx"
	"github.com/gogama/httpx/request"
	"github.com/gogama/httpx/retry"
	"github.com/gogama/httpx/timeout"
)

// DefaultTimeout is the per-request timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// ClientOptions configures the lookup transport.
type ClientOptions struct {
	// PoolSize is the connection pool size. Keep it >= the dispatch
	// concurrency limit so requests never queue for a connection.
	PoolSize int
	// Timeout bounds each request, including reading the body.
	Timeout   time.Duration
	UserAgent string

	// HTTPDoer overrides the underlying HTTP client (tests).
	HTTPDoer httpx.HTTPDoer
}

// Client issues single-attempt lookups. Retrying is the batch loop's job, so
// the httpx retry policy is retry.Never. Safe for concurrent use.
type Client struct {
	hx        *httpx.Client
	userAgent string
}

func NewClient(opts ClientOptions) *Client {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	doer := opts.HTTPDoer
	if doer == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxIdleConns = opts.PoolSize
		tr.MaxIdleConnsPerHost = opts.PoolSize
		tr.MaxConnsPerHost = opts.PoolSize
		doer = &http.Client{Transport: tr}
	}

	return &Client{
		hx: &httpx.Client{
			HTTPDoer:      doer,
			RetryPolicy:   retry.Never,
			TimeoutPolicy: timeout.Fixed(opts.Timeout),
		},
		userAgent: opts.UserAgent,
	}
}

// Fetch performs one GET for d. Transport failures are returned in
// Response.Err, never as a separate error.
func (c *Client) Fetch(ctx context.Context, d Descriptor) Response {
	plan, err := request.NewPlanWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return Response{Err: err}
	}
	plan.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		plan.Header.Set("User-Agent", c.userAgent)
	}

	e, err := c.hx.Do(plan)
	if e == nil {
		return Response{Err: err}
	}
	return Response{
		StatusCode: e.StatusCode(),
		Body:       e.Body,
		Err:        err,
	}
}

// Do fetches and classifies one descriptor.
func (c *Client) Do(ctx context.Context, d Descriptor) Outcome {
	return Classify(d, c.Fetch(ctx, d))
}
