// Package metrics exports batch progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/route-snapper/pkg/snap"
)

// Collector implements snap.Reporter on a caller-supplied registry.
type Collector struct {
	// RequestsTotal counts attempts by outcome kind and reason
	RequestsTotal *prometheus.CounterVec
	// RequestLatency tracks attempt latency by outcome kind
	RequestLatency *prometheus.HistogramVec
	// RoundsTotal counts dispatch rounds
	RoundsTotal prometheus.Counter
	// Pending is the size of the current round
	Pending prometheus.Gauge
	// ExhaustedTotal counts requests that ran out of attempts
	ExhaustedTotal prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapper_requests_total",
				Help: "Total number of route lookup attempts",
			},
			[]string{"outcome", "reason"},
		),
		RequestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapper_request_latency_seconds",
				Help:    "Route lookup latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		RoundsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "snapper_rounds_total",
			Help: "Total number of dispatch rounds",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapper_round_pending",
			Help: "Requests dispatched in the current round",
		}),
		ExhaustedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "snapper_retries_exhausted_total",
			Help: "Total number of requests that exhausted their attempts",
		}),
	}
}

func (c *Collector) RoundStarted(_, pending int) {
	c.RoundsTotal.Inc()
	c.Pending.Set(float64(pending))
}

func (c *Collector) Observe(ev snap.Event) {
	kind := ev.Outcome.Kind.String()
	c.RequestsTotal.WithLabelValues(kind, ev.Outcome.Reason).Inc()
	c.RequestLatency.WithLabelValues(kind).Observe(ev.Elapsed.Seconds())
}

func (c *Collector) Finished(state *snap.BatchState) {
	c.Pending.Set(0)
	c.ExhaustedTotal.Add(float64(len(state.Exhausted)))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
