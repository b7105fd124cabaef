package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shpitdev/route-snapper/internal/metrics"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
	"github.com/shpitdev/route-snapper/pkg/snap"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	var _ snap.Reporter = c

	c.RoundStarted(1, 3)
	for _, o := range []routeapi.Outcome{
		{Kind: routeapi.OutcomeSuccess, Reason: routeapi.ReasonOK},
		{Kind: routeapi.OutcomeSuccess, Reason: routeapi.ReasonOK},
		{Kind: routeapi.OutcomeRetryable, Reason: "http_503"},
	} {
		c.Observe(snap.Event{Round: 1, Outcome: o, Elapsed: 20 * time.Millisecond})
	}
	c.RoundStarted(2, 1)
	c.Finished(&snap.BatchState{Exhausted: []*routeapi.RetryExhaustedError{{RequestID: "2"}}})

	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("success", "ok")); got != 2 {
		t.Fatalf("success count=%v", got)
	}
	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("retryable", "http_503")); got != 1 {
		t.Fatalf("retryable count=%v", got)
	}
	if got := testutil.ToFloat64(c.RoundsTotal); got != 2 {
		t.Fatalf("rounds=%v", got)
	}
	if got := testutil.ToFloat64(c.ExhaustedTotal); got != 1 {
		t.Fatalf("exhausted=%v", got)
	}
	if got := testutil.ToFloat64(c.Pending); got != 0 {
		t.Fatalf("pending=%v", got)
	}

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "snapper_requests_total") {
		t.Fatalf("metrics endpoint missing counters:\n%s", body)
	}
}
