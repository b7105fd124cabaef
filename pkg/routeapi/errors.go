package routeapi

import (
	"fmt"
	"strings"

	"github.com/shpitdev/route-snapper/pkg/pipeline/redact"
)

// SoftError is a permanent, application-level rejection of one request.
// It is recorded and never retried.
type SoftError struct {
	RequestID  string
	StatusCode int
	URL        string
	// Message is the endpoint's Info text, or a redacted body snippet.
	Message string
}

func (e *SoftError) Error() string {
	if e == nil {
		return "soft error"
	}
	return fmt.Sprintf("soft error: request=%s status=%d message=%s",
		e.RequestID, e.StatusCode, strings.TrimSpace(e.Message))
}

// StatusError is the cause recorded for a retryable HTTP status.
type StatusError struct {
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if e.Snippet == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Snippet)
}

// RetryExhaustedError is the terminal outcome of a request that was still
// retryable after its last permitted attempt.
type RetryExhaustedError struct {
	RequestID string
	URL       string
	Attempts  int
	Cause     error
}

func (e *RetryExhaustedError) Error() string {
	if e == nil {
		return "retries exhausted"
	}
	cause := "unknown cause"
	if e.Cause != nil {
		cause = redact.Secrets(e.Cause.Error())
	}
	return fmt.Sprintf("retries exhausted: request=%s attempts=%d last error: %s", e.RequestID, e.Attempts, cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
