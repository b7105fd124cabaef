package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/route-snapper/internal/config"
	"github.com/shpitdev/route-snapper/internal/version"
	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
	"github.com/shpitdev/route-snapper/pkg/pipeline/io/local"
	"github.com/shpitdev/route-snapper/pkg/pipeline/io/remote"
	"github.com/shpitdev/route-snapper/pkg/pipeline/worker"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
	"github.com/shpitdev/route-snapper/pkg/snap"
)

// Options describes one batch run.
type Options struct {
	// Input is a local CSV path or an http(s) URL.
	Input string
	// Output is a CSV path; "" or "-" writes to Stdout.
	Output string
	Stdout io.Writer

	Config config.Config
	// Sequential sends one request at a time with a single attempt per row.
	Sequential bool

	// Reporter receives progress in addition to the log reporter.
	Reporter snap.Reporter
	Logger   *slog.Logger
	// Backoff between retry rounds. Nil uses worker.DefaultBackoff.
	Backoff *worker.Backoff
}

// Summary reports what a run did.
type Summary struct {
	RunID      string
	Rows       int
	Success    int
	SoftErrors int
	Exhausted  int
	Rounds     int
	Duration   time.Duration
}

// Run loads the input, snaps every row and writes the joined output. If
// snapping aborts, the output is still written with blank route columns for
// unresolved rows and the abort error is returned.
func Run(ctx context.Context, opts Options) (Summary, error) {
	cfg := opts.Config
	runID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", runID)
	runStart := time.Now()
	summary := Summary{RunID: runID}

	concurrency, maxAttempts, mode := cfg.Concurrency, cfg.MaxAttempts, "concurrent"
	if opts.Sequential {
		concurrency, maxAttempts, mode = 1, 1, "sequential"
	}
	logger.Info("run start",
		"mode", mode,
		"input", opts.Input,
		"base_url", cfg.BaseURL,
		"rows_limit", cfg.InputRows,
		"concurrency", concurrency,
		"timeout", cfg.RequestTimeout,
		"max_attempts", maxAttempts,
		"rate_limit_rps", cfg.RateLimitRPS,
	)

	readStart := time.Now()
	table, err := source(opts.Input, cfg.InputRows).Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load input %s: %w", opts.Input, err)
	}
	rows, err := snap.RowsFromTable(table, cfg.GeometryColumn)
	if err != nil {
		return summary, err
	}
	summary.Rows = len(rows)
	logger.Info("loaded input", "rows", len(rows), "duration", time.Since(readStart).Round(time.Millisecond))

	builder, err := routeapi.NewBuilder(routeapi.Config{
		BaseURL:      cfg.BaseURL,
		SnapDistance: cfg.SnapDistance,
		ReturnKeys:   cfg.ReturnKeys,
	})
	if err != nil {
		return summary, err
	}
	descs, err := snap.BuildAll(builder, rows)
	if err != nil {
		return summary, err
	}
	logger.Info("generated request urls", "count", len(descs), "endpoint", builder.Endpoint())

	reporters := snap.MultiReporter{snap.LogReporter{Logger: logger, Every: cfg.ProgressEvery}}
	if opts.Reporter != nil {
		reporters = append(reporters, opts.Reporter)
	}
	loop := &snap.Loop{
		Dispatcher: &snap.Dispatcher{
			Client: routeapi.NewClient(routeapi.ClientOptions{
				PoolSize:  concurrency,
				Timeout:   cfg.RequestTimeout,
				UserAgent: "route-snapper/" + version.Current,
			}),
			Concurrency:  concurrency,
			RateLimitRPS: cfg.RateLimitRPS,
			Reporter:     reporters,
		},
		MaxAttempts: maxAttempts,
		Backoff:     opts.Backoff,
		Logger:      logger,
	}

	snapStart := time.Now()
	state, runErr := loop.Run(ctx, descs)
	summary.Success = len(state.Successes)
	summary.SoftErrors = len(state.SoftErrors)
	summary.Exhausted = len(state.Exhausted)
	summary.Rounds = state.Rounds
	if runErr != nil && errors.Is(runErr, snap.ErrDuplicateRequestID) {
		return summary, runErr
	}
	for _, se := range state.SoftErrors {
		logger.Debug("soft error", "request_id", se.RequestID, "status", se.StatusCode, "message", se.Message)
	}
	for _, ex := range state.Exhausted {
		logger.Warn("request failed", "request_id", ex.RequestID, "attempts", ex.Attempts, "error", ex.Cause)
	}
	if runErr != nil {
		logger.Error("snapping aborted, writing partial output",
			"success", summary.Success,
			"unresolved", summary.Rows-state.Terminal(),
			"error", runErr,
		)
	} else {
		logger.Info("finished snapping",
			"success", summary.Success,
			"soft_errors", summary.SoftErrors,
			"retries_exhausted", summary.Exhausted,
			"rounds", summary.Rounds,
			"duration", time.Since(snapStart).Round(time.Millisecond),
		)
	}

	out, err := snap.Assemble(table.Header, rows, state.Successes, cfg.ReturnKeys)
	if err != nil {
		return summary, errors.Join(runErr, err)
	}
	// Written even after cancellation.
	var sink core.OutputAdapter = local.Sink{Path: opts.Output, W: opts.Stdout}
	if err := sink.Store(context.WithoutCancel(ctx), out); err != nil {
		return summary, errors.Join(runErr, fmt.Errorf("write output: %w", err))
	}

	summary.Duration = time.Since(runStart)
	if runErr != nil {
		return summary, runErr
	}
	logger.Info("run complete", "output", outputName(opts.Output), "rows", len(out.Rows), "duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func source(input string, maxRows int) core.InputAdapter {
	if remote.IsURL(input) {
		return remote.URL{URL: input, MaxRows: maxRows}
	}
	return local.File{Path: input, MaxRows: maxRows}
}

func outputName(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}
