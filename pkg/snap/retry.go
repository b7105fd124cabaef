package snap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shpitdev/route-snapper/pkg/pipeline/worker"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

// DefaultMaxAttempts is the per-request attempt cap used when none is configured.
const DefaultMaxAttempts = 5

var (
	// ErrEndpointUnreachable aborts a batch when the endpoint has not answered a
	// single request in the batch and none of the failures looked transient.
	ErrEndpointUnreachable = errors.New("route endpoint unreachable")

	// ErrDuplicateRequestID is returned when two rows or two records share a request id.
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// BatchState accumulates the terminal outcome of every request in a batch.
type BatchState struct {
	Successes  []routeapi.Record
	SoftErrors []*routeapi.SoftError
	Exhausted  []*routeapi.RetryExhaustedError
	Rounds     int
	// Attempts counts dispatched attempts per request id.
	Attempts map[string]int
}

// Terminal returns the number of requests that reached a terminal outcome.
func (s *BatchState) Terminal() int {
	return len(s.Successes) + len(s.SoftErrors) + len(s.Exhausted)
}

// Loop redispatches retryable failures until the retry set is empty.
type Loop struct {
	Dispatcher *Dispatcher
	// MaxAttempts caps attempts per request. <=0 uses DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is slept between rounds. nil uses worker.DefaultBackoff.
	Backoff *worker.Backoff
	Logger  *slog.Logger
}

// Run drives descs to completion. On return without error every descriptor has
// exactly one terminal outcome in the state. On error the partial state is
// still returned and reported as finished.
func (l *Loop) Run(ctx context.Context, descs []routeapi.Descriptor) (*BatchState, error) {
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := worker.DefaultBackoff
	if l.Backoff != nil {
		backoff = *l.Backoff
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reporter := l.Dispatcher.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	state := &BatchState{Attempts: make(map[string]int, len(descs))}
	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if _, dup := seen[d.RequestID]; dup {
			return state, fmt.Errorf("%w: %q", ErrDuplicateRequestID, d.RequestID)
		}
		seen[d.RequestID] = struct{}{}
	}
	defer func() { reporter.Finished(state) }()

	// answered flips once any request gets an HTTP response or a transient
	// failure. After that, transport errors are per-row.
	answered := false
	pending := descs
	for len(pending) > 0 {
		if state.Rounds > 0 {
			logger.Info("retrying requests", "count", len(pending), "round", state.Rounds+1)
			if err := backoff.Sleep(ctx, state.Rounds-1); err != nil {
				return state, err
			}
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		state.Rounds++
		reporter.RoundStarted(state.Rounds, len(pending))
		for _, d := range pending {
			state.Attempts[d.RequestID]++
		}

		outcomes, err := l.Dispatcher.dispatchRound(ctx, state.Rounds, pending)
		if err != nil {
			// Keep answers that arrived before cancellation.
			for _, o := range outcomes {
				switch o.Kind {
				case routeapi.OutcomeSuccess:
					state.Successes = append(state.Successes, o.Record)
				case routeapi.OutcomeSoftError:
					state.SoftErrors = append(state.SoftErrors, o.Soft)
				}
			}
			return state, err
		}

		var retry []routeapi.Descriptor
		var lastCause error
		for _, o := range outcomes {
			if !o.IsTransportFailure() {
				answered = true
			}
			switch o.Kind {
			case routeapi.OutcomeSuccess:
				state.Successes = append(state.Successes, o.Record)
			case routeapi.OutcomeSoftError:
				state.SoftErrors = append(state.SoftErrors, o.Soft)
			case routeapi.OutcomeRetryable:
				lastCause = o.Cause
				id := o.Descriptor.RequestID
				if state.Attempts[id] >= maxAttempts {
					state.Exhausted = append(state.Exhausted, &routeapi.RetryExhaustedError{
						RequestID: id,
						URL:       o.Descriptor.URL,
						Attempts:  state.Attempts[id],
						Cause:     o.Cause,
					})
					logger.Warn("retries exhausted", "request_id", id, "attempts", state.Attempts[id], "reason", o.Reason)
					continue
				}
				retry = append(retry, o.Descriptor)
			default:
				return state, fmt.Errorf("request %s: unclassified outcome", o.Descriptor.RequestID)
			}
		}
		if !answered && len(outcomes) > 0 {
			return state, fmt.Errorf("%w: %v", ErrEndpointUnreachable, lastCause)
		}
		pending = retry
	}
	return state, nil
}
