// Package snap runs a batch of route lookups: bounded concurrent dispatch,
// retry rounds until every request has a terminal outcome, and the left join
// of the results back onto the input rows.
package snap

import (
	"context"

	"github.com/shpitdev/route-snapper/pkg/pipeline/worker"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

// DefaultConcurrency is the in-flight request limit used when none is configured.
const DefaultConcurrency = 100

// Doer performs and classifies one lookup. *routeapi.Client implements it.
type Doer interface {
	Do(ctx context.Context, d routeapi.Descriptor) routeapi.Outcome
}

// Dispatcher sends one attempt per descriptor with at most Concurrency
// requests in flight.
type Dispatcher struct {
	Client      Doer
	Concurrency int
	// RateLimitRPS caps the request rate across all workers. <=0 disables it.
	RateLimitRPS float64
	Reporter     Reporter
}

// Dispatch returns exactly one outcome per descriptor, in completion order.
// Per-request failures are outcomes, not errors; the error is non-nil only when
// ctx is done, and the outcomes collected until then are still returned.
func (d *Dispatcher) Dispatch(ctx context.Context, descs []routeapi.Descriptor) ([]routeapi.Outcome, error) {
	return d.dispatchRound(ctx, 1, descs)
}

func (d *Dispatcher) dispatchRound(ctx context.Context, round int, descs []routeapi.Descriptor) ([]routeapi.Outcome, error) {
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	reporter := d.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	outcomes := make([]routeapi.Outcome, 0, len(descs))
	process := func(ctx context.Context, desc routeapi.Descriptor) (routeapi.Outcome, error) {
		return d.Client.Do(ctx, desc), nil
	}
	onResult := func(res worker.Result[routeapi.Descriptor, routeapi.Outcome]) error {
		outcomes = append(outcomes, res.Output)
		reporter.Observe(Event{
			Round:     round,
			Completed: len(outcomes),
			Total:     len(descs),
			Outcome:   res.Output,
			Elapsed:   res.Elapsed,
		})
		return nil
	}

	_, err := worker.ProcessAllWithCallback(ctx, descs, process, onResult, worker.Options{
		Workers:       concurrency,
		RateLimitRPS:  d.RateLimitRPS,
		FailurePolicy: worker.FailurePolicyPartialOutput,
	})
	return outcomes, err
}
