package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/route-snapper/pkg/mockroute"
)

func main() {
	addr := defaultString("MOCK_ROUTE_ADDR", ":8080")
	latency := defaultDuration("MOCK_ROUTE_LATENCY", 0)
	noRoute := defaultString("MOCK_ROUTE_NO_ROUTE_IDS", "")
	flaky := defaultString("MOCK_ROUTE_FLAKY_IDS", "")

	fs := flag.NewFlagSet("mock-route-api", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.DurationVar(&latency, "latency", latency, "Delay added to every response")
	fs.StringVar(&noRoute, "no-route-ids", noRoute, "Comma-separated request ids answered with an Info envelope (also supports env: MOCK_ROUTE_NO_ROUTE_IDS)")
	fs.StringVar(&flaky, "flaky-ids", flaky, "Comma-separated request ids that get one 503 before succeeding (also supports env: MOCK_ROUTE_FLAKY_IDS)")
	_ = fs.Parse(os.Args[1:])

	srv := mockroute.New()
	srv.SetLatency(latency)
	for _, id := range splitCSV(noRoute) {
		srv.NoRoute(id)
	}
	for _, id := range splitCSV(flaky) {
		srv.FailFirst(id, 1, http.StatusServiceUnavailable)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-route-api listening on %s (path=%s latency=%s)\n", addr, mockroute.Path, latency)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}

func defaultDuration(envVar string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ignoring invalid %s=%q: %v\n", envVar, v, err)
		return fallback
	}
	return d
}
