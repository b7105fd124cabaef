package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shpitdev/route-snapper/pkg/pipeline/worker"
)

func TestBackoffDuration(t *testing.T) {
	b := worker.Backoff{Initial: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 350 * time.Millisecond},
		{attempt: 10, want: 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.Duration(tt.attempt); got != tt.want {
			t.Fatalf("Duration(%d)=%s want=%s", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDuration_JitterStaysInBounds(t *testing.T) {
	b := worker.Backoff{Initial: 100 * time.Millisecond, Max: time.Second, JitterFrac: 0.2}
	for i := 0; i < 100; i++ {
		got := b.Duration(0)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jittered duration out of bounds: %s", got)
		}
	}
}

func TestBackoffSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := worker.Backoff{Initial: time.Hour}
	if err := b.Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
