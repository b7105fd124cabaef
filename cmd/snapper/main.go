package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/route-snapper/internal/app"
	"github.com/shpitdev/route-snapper/internal/config"
	"github.com/shpitdev/route-snapper/internal/logging"
	"github.com/shpitdev/route-snapper/internal/metrics"
	"github.com/shpitdev/route-snapper/internal/version"
	"github.com/shpitdev/route-snapper/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "run":
		code = runSnap(ctx, "run", os.Args[2:], false)
	case "sequential":
		code = runSnap(ctx, "sequential", os.Args[2:], true)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

func runSnap(ctx context.Context, name string, args []string, sequential bool) int {
	def := config.Defaults()
	fromFlags := def

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", os.Getenv("SNAPPER_CONFIG"), "Optional YAML config file (env: SNAPPER_CONFIG)")
	inputPath := fs.String("input", "", "Input CSV path or http(s) URL (must include the geometry column)")
	outputPath := fs.String("output", "-", "Output CSV path, - for stdout")
	returnKeys := fs.String("return-keys", strings.Join(def.ReturnKeys, ","), "Comma-separated route fields to return (env: RETURN_KEYS)")
	fs.StringVar(&fromFlags.BaseURL, "base-url", def.BaseURL, "Route API base URL (env: ROUTE_API_BASE_URL)")
	fs.Float64Var(&fromFlags.SnapDistance, "snap-distance", def.SnapDistance, "Snap distance sent with each request (env: SNAP_DISTANCE)")
	fs.IntVar(&fromFlags.Concurrency, "concurrency", def.Concurrency, "Max requests in flight (env: CONCURRENCY)")
	fs.DurationVar(&fromFlags.RequestTimeout, "request-timeout", def.RequestTimeout, "Per-request timeout (env: REQUEST_TIMEOUT)")
	fs.IntVar(&fromFlags.MaxAttempts, "max-attempts", def.MaxAttempts, "Max attempts per row for retryable failures (env: MAX_ATTEMPTS)")
	fs.Float64Var(&fromFlags.RateLimitRPS, "rate-limit-rps", def.RateLimitRPS, "Global request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.IntVar(&fromFlags.ProgressEvery, "progress-every", def.ProgressEvery, "Log progress every N completed requests (env: PROGRESS_EVERY)")
	fs.IntVar(&fromFlags.InputRows, "rows", def.InputRows, "Number of input rows to read, 1-1000 (env: INPUT_ROWS)")
	fs.StringVar(&fromFlags.GeometryColumn, "geometry-column", def.GeometryColumn, "Input column holding WKT points (env: GEOMETRY_COLUMN)")
	fs.StringVar(&fromFlags.LogLevel, "log-level", def.LogLevel, "debug, info, warn or error (env: LOG_LEVEL)")
	fs.StringVar(&fromFlags.MetricsAddr, "metrics-addr", def.MetricsAddr, "Serve Prometheus metrics on this address, empty disables (env: METRICS_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" {
		_, _ = fmt.Fprintf(os.Stderr, "%s requires --input\n", name)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "return-keys":
			cfg.ReturnKeys = config.SplitList(*returnKeys)
		case "base-url":
			cfg.BaseURL = fromFlags.BaseURL
		case "snap-distance":
			cfg.SnapDistance = fromFlags.SnapDistance
		case "concurrency":
			cfg.Concurrency = fromFlags.Concurrency
		case "request-timeout":
			cfg.RequestTimeout = fromFlags.RequestTimeout
		case "max-attempts":
			cfg.MaxAttempts = fromFlags.MaxAttempts
		case "rate-limit-rps":
			cfg.RateLimitRPS = fromFlags.RateLimitRPS
		case "progress-every":
			cfg.ProgressEvery = fromFlags.ProgressEvery
		case "rows":
			cfg.InputRows = fromFlags.InputRows
		case "geometry-column":
			cfg.GeometryColumn = fromFlags.GeometryColumn
		case "log-level":
			cfg.LogLevel = fromFlags.LogLevel
		case "metrics-addr":
			cfg.MetricsAddr = fromFlags.MetricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	logger := logging.New(os.Stderr, level)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		_, err := app.Run(gctx, app.Options{
			Input:      *inputPath,
			Output:     *outputPath,
			Stdout:     os.Stdout,
			Config:     cfg,
			Sequential: sequential,
			Reporter:   collector,
			Logger:     logger,
		})
		return err
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)

		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s failed: %s\n", name, redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `snapper: snap CSV points to the nearest road-network route

Usage:
  snapper <command> [flags]

Commands:
  run         Snap rows concurrently with retry rounds
  sequential  Snap rows one at a time, single attempt per row
  version     Print the version

Examples:
  snapper run --input points.csv --output snapped.csv
  snapper run --input https://example.com/points.csv --rows 500 --metrics-addr :9090
  snapper sequential --input points.csv --rows 50

Environment:
  SNAPPER_CONFIG      Optional YAML config file (${VAR} references are expanded)
  ROUTE_API_BASE_URL  Route API base URL
  SNAP_DISTANCE       Snap distance sent with each request
  RETURN_KEYS         Comma-separated route fields to return
  CONCURRENCY         Max requests in flight
  REQUEST_TIMEOUT     Per-request timeout (e.g. 10s)
  MAX_ATTEMPTS        Max attempts per row
  RATE_LIMIT_RPS      Global request rate limit, 0 disables
  PROGRESS_EVERY      Log progress every N completed requests
  INPUT_ROWS          Number of input rows to read (1-1000)
  GEOMETRY_COLUMN     Input column holding WKT points
  LOG_LEVEL           debug, info, warn or error
  METRICS_ADDR        Serve Prometheus metrics on this address

A .env file in the working directory is loaded first when present.

`)
}
