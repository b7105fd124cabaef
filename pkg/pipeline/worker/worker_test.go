package worker_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/route-snapper/pkg/pipeline/worker"
)

func TestProcessAll_CallsEachItemOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := map[string]int{}

	fn := func(_ context.Context, in string) (string, error) {
		mu.Lock()
		calls[in]++
		mu.Unlock()
		return in + "!", nil
	}

	items := []string{"a", "b", "c", "d"}
	out, err := worker.ProcessAll(context.Background(), items, fn, worker.Options{Workers: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("expected %d outputs, got %d", len(items), len(out))
	}
	for i, item := range items {
		if out[i].Input != item || out[i].Output != item+"!" || out[i].Err != nil {
			t.Fatalf("unexpected out[%d]: %#v", i, out[i])
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, item := range items {
		if calls[item] != 1 {
			t.Fatalf("expected 1 call for %q, got %d", item, calls[item])
		}
	}
}

func TestProcessAll_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int64
	fn := func(_ context.Context, in int) (int, error) {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return in, nil
	}

	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}
	if _, err := worker.ProcessAll(context.Background(), items, fn, worker.Options{Workers: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := maxInFlight.Load(); got > 4 {
		t.Fatalf("expected at most 4 concurrent calls, saw %d", got)
	}
}

func TestProcessAll_RequestTimeoutAppliesPerItem(t *testing.T) {
	t.Parallel()

	fn := func(ctx context.Context, in string) (string, error) {
		if in == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return in, nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"slow", "fast"}, fn, worker.Options{
		Workers:        2,
		RequestTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(out[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded for slow item, got %#v", out[0])
	}
	if out[1].Err != nil || out[1].Output != "fast" {
		t.Fatalf("unexpected out[1]: %#v", out[1])
	}
}

func TestProcessAll_FailFastStops(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0

	fn := func(_ context.Context, in string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()

		if in == "bad" {
			return "", errors.New("boom")
		}
		t.Fatalf("unexpected call for %q", in)
		return "", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, fn, worker.Options{
		Workers:       1,
		FailurePolicy: worker.FailurePolicyFailFast,
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output on fail-fast, got %#v", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProcessAll_PartialOutputContinues(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, in string) (string, error) {
		if in == "bad" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, fn, worker.Options{
		Workers:       1,
		FailurePolicy: worker.FailurePolicyPartialOutput,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "boom" {
		t.Fatalf("unexpected out[0]: %#v", out[0])
	}
	if out[1].Err != nil || out[1].Output != "ok" {
		t.Fatalf("unexpected out[1]: %#v", out[1])
	}
}

func TestProcessAll_EmptyInput(t *testing.T) {
	t.Parallel()

	out, err := worker.ProcessAll(context.Background(), nil, func(_ context.Context, in string) (string, error) {
		return in, nil
	}, worker.Options{Workers: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no outputs, got %#v", out)
	}
}

func TestProcessAllWithCallback_CompletesInCompletionOrder(t *testing.T) {
	t.Parallel()

	releaseSlow := make(chan struct{})
	startedSlow := make(chan struct{})
	var firstCallbackInput atomic.Value
	firstCallbackInput.Store("")

	fn := func(_ context.Context, in string) (string, error) {
		if in == "slow" {
			close(startedSlow)
			<-releaseSlow
		}
		return in, nil
	}

	var mu sync.Mutex
	var seen []string
	doneErr := make(chan error, 1)
	go func() {
		_, err := worker.ProcessAllWithCallback(
			context.Background(),
			[]string{"slow", "fast"},
			fn,
			func(res worker.Result[string, string]) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, res.Input)
				if len(seen) == 1 {
					firstCallbackInput.Store(res.Input)
				}
				return nil
			},
			worker.Options{Workers: 2},
		)
		doneErr <- err
	}()

	select {
	case <-startedSlow:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for slow task to start")
	}

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if firstCallbackInput.Load().(string) == "fast" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := firstCallbackInput.Load().(string); got != "fast" {
		t.Fatalf("expected fast callback first, got %q", got)
	}

	close(releaseSlow)
	select {
	case err := <-doneErr:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []string{"fast", "slow"}) {
		t.Fatalf("unexpected callback order: %v", seen)
	}
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"a"},
		func(_ context.Context, in string) (string, error) {
			return in, nil
		},
		func(worker.Result[string, string]) error {
			return callbackErr
		},
		worker.Options{Workers: 1},
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
