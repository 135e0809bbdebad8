package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the refresh loop.
type Metrics struct {
	ticks         *prometheus.CounterVec
	facetFailures *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	authFailures  prometheus.Counter
}

// NewMetrics registers the refresh metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csgstat_ticks_total",
			Help: "Refresh ticks by result (success, error, auth_required).",
		}, []string{"result"}),
		facetFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csgstat_facet_failures_total",
			Help: "Individual facet fetch failures by facet name.",
		}, []string{"facet"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "csgstat_tick_duration_seconds",
			Help: "Duration of refresh ticks.",
			// the cost endpoint alone can run ~30s
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "csgstat_auth_failures_total",
			Help: "Ticks that could not establish a valid session.",
		}),
	}
}

func (m *Metrics) tick(result string, seconds float64) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
	m.tickDuration.Observe(seconds)
}

func (m *Metrics) facetFailure(facet string) {
	if m == nil {
		return
	}
	m.facetFailures.WithLabelValues(facet).Inc()
}

func (m *Metrics) authFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}
