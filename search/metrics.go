package search

import (
	"time"

	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reposearch"

// Metrics counts orchestrator activity for one search surface.
// A nil *Metrics records nothing.
type Metrics struct {
	Submits  prometheus.Counter
	Requests prometheus.Counter
	Stale    prometheus.Counter
	Errors   *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics registers the orchestrator metrics on reg, labelled with surface.
// Registering the same surface twice on one registry panics.
func NewMetrics(reg prometheus.Registerer, surface string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"surface": surface}

	return &Metrics{
		Submits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "submits_total",
			Help:        "Queries submitted, including empty ones.",
			ConstLabels: labels,
		}),
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "requests_total",
			Help:        "Remote calls issued after the debounce interval.",
			ConstLabels: labels,
		}),
		Stale: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "stale_total",
			Help:        "Completions discarded because a newer query superseded them.",
			ConstLabels: labels,
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "errors_total",
			Help:        "Published errors by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "request_duration_seconds",
			Help:        "Latency of remote calls whose result was published.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) submit() {
	if m != nil {
		m.Submits.Inc()
	}
}

func (m *Metrics) request() {
	if m != nil {
		m.Requests.Inc()
	}
}

func (m *Metrics) stale() {
	if m != nil {
		m.Stale.Inc()
	}
}

func (m *Metrics) settled(d time.Duration, err *core.Error) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
	if err != nil {
		m.Errors.WithLabelValues(string(err.Kind)).Inc()
	}
}
