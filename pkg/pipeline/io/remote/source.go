// Package remote loads input tables over HTTP.
package remote

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gogama/httpx"
	"github.com/gogama/httpx/request"
	"github.com/gogama/httpx/retry"
	"github.com/gogama/httpx/timeout"

	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
	"github.com/shpitdev/route-snapper/pkg/pipeline/io/local"
)

// IsURL reports whether s names an http(s) resource rather than a local path.
func IsURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// URL is an input adapter that downloads a CSV file.
//
// The download uses httpx's default retry policy (transient errors and
// 429/502/503/504 are retried with jittered backoff).
type URL struct {
	URL     string
	MaxRows int

	// Client overrides the HTTP client. Nil uses a client with a 60s attempt timeout.
	Client *httpx.Client
}

func (u URL) Load(ctx context.Context) (core.Table, error) {
	client := u.Client
	if client == nil {
		client = &httpx.Client{
			HTTPDoer:      &http.Client{},
			TimeoutPolicy: timeout.Fixed(60 * time.Second),
			RetryPolicy:   retry.DefaultPolicy,
		}
	}

	plan, err := request.NewPlanWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return core.Table{}, err
	}
	plan.Header.Set("Accept", "text/csv")

	e, err := client.Do(plan)
	if err != nil {
		return core.Table{}, err
	}
	if code := e.StatusCode(); code/100 != 2 {
		return core.Table{}, newHTTPError(u.URL, code, e.Response.Status, e.Body)
	}
	return local.ReadCSV(bytes.NewReader(e.Body), u.MaxRows)
}
