package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded against the requests_total counter.
const (
	OutcomeServed         = "served"
	OutcomeVariantsFailed = "variants_failed"
	OutcomePickFailed     = "pick_failed"
	OutcomeOriginFailed   = "origin_failed"
)

// Fetch kinds recorded against the fetch duration histogram.
const (
	FetchVariants = "variants"
	FetchOrigin   = "origin"
)

// Metrics holds the instruments exposed on the ops listener. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "coinflip_requests_total",
			Help: "The total number of proxied requests by outcome",
		}, []string{"outcome"}),
		fetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "coinflip_fetch_duration_seconds",
			Help: "Upstream fetch durations in seconds",
		}, []string{"kind"}),
	}
	return m
}

func (m *Metrics) CountRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetch(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
