package snap

import (
	"log/slog"
	"time"

	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

// Event describes one completed attempt within a dispatch round.
type Event struct {
	Round     int
	Completed int
	Total     int
	Outcome   routeapi.Outcome
	Elapsed   time.Duration
}

// Reporter observes batch progress. Calls for one batch are never concurrent.
type Reporter interface {
	RoundStarted(round, pending int)
	Observe(ev Event)
	Finished(state *BatchState)
}

// LogReporter logs a progress line every Every completed attempts of a round,
// and once when the round drains.
type LogReporter struct {
	Logger *slog.Logger
	Every  int
}

func (r LogReporter) RoundStarted(round, pending int) {
	r.logger().Info("dispatching round", "round", round, "pending", pending)
}

func (r LogReporter) Observe(ev Event) {
	every := r.Every
	if every <= 0 {
		every = 200
	}
	if ev.Completed%every != 0 && ev.Completed != ev.Total {
		return
	}
	r.logger().Info("progress",
		"round", ev.Round,
		"completed", ev.Completed,
		"total", ev.Total,
	)
}

func (r LogReporter) Finished(state *BatchState) {
	r.logger().Info("batch drained",
		"success", len(state.Successes),
		"soft_errors", len(state.SoftErrors),
		"retries_exhausted", len(state.Exhausted),
		"rounds", state.Rounds,
	)
}

func (r LogReporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// MultiReporter fans events out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) RoundStarted(round, pending int) {
	for _, r := range m {
		r.RoundStarted(round, pending)
	}
}

func (m MultiReporter) Observe(ev Event) {
	for _, r := range m {
		r.Observe(ev)
	}
}

func (m MultiReporter) Finished(state *BatchState) {
	for _, r := range m {
		r.Finished(state)
	}
}

type nopReporter struct{}

func (nopReporter) RoundStarted(int, int) {}
func (nopReporter) Observe(Event)         {}
func (nopReporter) Finished(*BatchState)  {}
