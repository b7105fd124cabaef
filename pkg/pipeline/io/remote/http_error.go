package remote

import (
	"fmt"
	"strings"

	"github.com/shpitdev/route-snapper/pkg/pipeline/redact"
)

// HTTPError is a sanitized summary of a non-2xx response while fetching input.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint from the body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "remote http error"
	}
	parts := []string{
		fmt.Sprintf("fetch input: url=%s status=%s", redact.Secrets(e.URL), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(url string, statusCode int, status string, body []byte) error {
	if status == "" {
		status = fmt.Sprintf("%d", statusCode)
	}
	return &HTTPError{
		URL:        url,
		StatusCode: statusCode,
		Status:     status,
		Snippet:    redact.Snippet(body, 256),
	}
}
