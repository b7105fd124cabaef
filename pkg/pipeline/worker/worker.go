package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type FailurePolicy int

const (
	FailurePolicyPartialOutput FailurePolicy = iota
	FailurePolicyFailFast
)

// Options configures one pass of the pool over a set of items.
//
// Workers is also the admission limit: an item is only handed to the processor
// by a free worker, so at most Workers processor calls run at once.
type Options struct {
	Workers int

	// RequestTimeout bounds each processor call. Set to <=0 to leave deadlines
	// to the processor.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	FailurePolicy FailurePolicy
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input   In
	Output  Out
	Err     error
	Elapsed time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	return o
}

// ProcessAll runs the processor once over every input item and returns results
// in input order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes onResult
// as each item completes. The callback receives completion-order results and is
// never called concurrently with itself.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	type completion struct {
		idx int
		res Result[In, Out]
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			res := processOne(runCtx, j.in, processor, limiter, opts)
			select {
			case done <- completion{idx: j.idx, res: res}:
			case <-runCtx.Done():
				return
			}
			if res.Err != nil && opts.FailurePolicy == FailurePolicyFailFast {
				fail(res.Err)
				return
			}
		}
	}

	workers := opts.Workers
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for item := range done {
		out[item.idx] = item.res
		if onResult != nil {
			if err := onResult(item.res); err != nil {
				fail(err)
			}
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	item In,
	processor func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) Result[In, Out] {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Result[In, Out]{Input: item, Err: err}
		}
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if opts.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, opts.RequestTimeout)
	}
	start := time.Now()
	res, err := processor(reqCtx, item)
	elapsed := time.Since(start)
	if cancel != nil {
		cancel()
	}
	return Result[In, Out]{
		Input:   item,
		Output:  res,
		Err:     err,
		Elapsed: elapsed,
	}
}
