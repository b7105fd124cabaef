package routeapi

import (
	"fmt"
	"net/http"

	"github.com/gogama/httpx/transient"

	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
	"github.com/shpitdev/route-snapper/pkg/pipeline/redact"
)

// OutcomeKind is the classifier's verdict on one attempt.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeSoftError
	OutcomeRetryable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftError:
		return "soft_error"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Low-cardinality reasons attached to outcomes, used for logs and metrics.
const (
	ReasonOK          = "ok"
	ReasonNoRoute     = "no_route"
	ReasonBadBody     = "bad_body"
	ReasonTimeout     = "timeout"
	ReasonConnRefused = "conn_refused"
	ReasonConnReset   = "conn_reset"
	ReasonTransport   = "transport"
)

// Record is a successful lookup: the returned route fields plus the
// correlation id copied from the response envelope.
type Record struct {
	RequestID string
	Fields    map[string]string
}

// Response is the raw result of one attempt. Err is set when no complete
// response was received.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Outcome is the classification of one attempt for one descriptor.
// Exactly one of Record (success), Soft (soft error) or Cause (retryable) is set.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	StatusCode int
	Descriptor Descriptor
	Record     Record
	Soft       *SoftError
	Cause      error
}

const snippetMax = 256

// Classify maps an attempt to an outcome. It is a pure function of its inputs.
func Classify(d Descriptor, r Response) Outcome {
	out := Outcome{Descriptor: d, StatusCode: r.StatusCode}

	if r.Err != nil {
		out.Kind = OutcomeRetryable
		out.Reason = transportReason(r.Err)
		out.Cause = &core.TransientError{Err: r.Err}
		return out
	}

	switch r.StatusCode {
	case http.StatusOK:
		env, err := DecodeEnvelope(r.Body)
		if err != nil {
			return soft(out, ReasonBadBody, "unrecognized response body: "+redact.Snippet(r.Body, snippetMax))
		}
		switch env.Kind {
		case EnvelopeRouteInfo:
			id := env.RequestID
			if id == "" {
				id = d.RequestID
			}
			out.Kind = OutcomeSuccess
			out.Reason = ReasonOK
			out.Record = Record{RequestID: id, Fields: env.RouteInfo}
			return out
		case EnvelopeInfo:
			return soft(out, ReasonNoRoute, env.Info)
		default:
			return soft(out, ReasonBadBody, "unrecognized response body")
		}
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		out.Kind = OutcomeRetryable
		out.Reason = httpReason(r.StatusCode)
		out.Cause = &core.TransientError{Err: &StatusError{
			StatusCode: r.StatusCode,
			Snippet:    redact.Snippet(r.Body, snippetMax),
		}}
		return out
	default:
		return soft(out, httpReason(r.StatusCode), redact.Snippet(r.Body, snippetMax))
	}
}

func soft(out Outcome, reason, msg string) Outcome {
	out.Kind = OutcomeSoftError
	out.Reason = reason
	out.Soft = &SoftError{
		RequestID:  out.Descriptor.RequestID,
		StatusCode: out.StatusCode,
		URL:        redact.Secrets(out.Descriptor.URL),
		Message:    msg,
	}
	return out
}

func httpReason(code int) string {
	return fmt.Sprintf("http_%d", code)
}

func transportReason(err error) string {
	switch transient.Categorize(err) {
	case transient.Timeout:
		return ReasonTimeout
	case transient.ConnRefused:
		return ReasonConnRefused
	case transient.ConnReset:
		return ReasonConnReset
	default:
		return ReasonTransport
	}
}

// IsTransportFailure reports whether the outcome is a retryable failure in
// which no HTTP response was received and the error is not a known transient
// network condition (timeout, refused, reset).
func (o Outcome) IsTransportFailure() bool {
	return o.Kind == OutcomeRetryable && o.StatusCode == 0 && o.Reason == ReasonTransport
}
