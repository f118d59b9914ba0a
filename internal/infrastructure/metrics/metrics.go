package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the rate pipeline. A nil
// *Metrics is valid and records nothing, which keeps tests free of registry
// bookkeeping.
type Metrics struct {
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamDuration      prometheus.Histogram
	BreakerState          prometheus.Gauge
	BreakerRejectedTotal  prometheus.Counter
	CacheOpsTotal         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpstreamRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecore_upstream_requests_total",
			Help: "Upstream pricing API requests by outcome",
		}, []string{"outcome"}),
		UpstreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratecore_upstream_request_duration_seconds",
			Help:    "Upstream pricing API request latency",
			Buckets: prometheus.DefBuckets,
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ratecore_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
		BreakerRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ratecore_breaker_rejected_total",
			Help: "Requests rejected without a network call because the circuit was open",
		}),
		CacheOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecore_cache_ops_total",
			Help: "Rate cache operations by op and result",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) ObserveUpstream(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
	m.UpstreamDuration.Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

func (m *Metrics) IncBreakerRejected() {
	if m == nil {
		return
	}
	m.BreakerRejectedTotal.Inc()
}

func (m *Metrics) IncCacheOp(op, result string) {
	if m == nil {
		return
	}
	m.CacheOpsTotal.WithLabelValues(op, result).Inc()
}
