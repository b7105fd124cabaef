package worker

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff is an exponential sleep schedule with symmetric jitter.
type Backoff struct {
	// Initial is the sleep before the first retry.
	Initial time.Duration
	// Max caps exponential growth.
	Max time.Duration
	// JitterFrac applies +/- jitter to sleeps (0.2 = +/-20%). Zero disables jitter.
	JitterFrac float64
}

// DefaultBackoff is the schedule used between retry rounds unless overridden.
var DefaultBackoff = Backoff{
	Initial:    200 * time.Millisecond,
	Max:        2 * time.Second,
	JitterFrac: 0.2,
}

// Duration returns the sleep before retry number attempt (zero-based).
func (b Backoff) Duration(attempt int) time.Duration {
	sleep := b.Initial
	if sleep <= 0 {
		return 0
	}
	for i := 0; i < attempt && (b.Max <= 0 || sleep < b.Max); i++ {
		sleep *= 2
		if b.Max > 0 && sleep > b.Max {
			sleep = b.Max
			break
		}
	}
	if b.JitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*b.JitterFrac
	return time.Duration(float64(sleep) * j)
}

// Sleep waits for Duration(attempt) or until ctx is done.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	d := b.Duration(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
