package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahul/autopilot/internal/engine"
)

// Metrics holds the process counters on a private registry.
type Metrics struct {
	Registry     *prometheus.Registry
	Matches      *prometheus.CounterVec
	Runs         *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "matches_total",
			Help:      "Commands matched against the catalog, by outcome.",
		}, []string{"outcome"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "runs_total",
			Help:      "Finished runs by template and terminal state.",
		}, []string{"template", "state"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autopilot",
			Name:      "step_duration_seconds",
			Help:      "Duration of executed steps by action.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"action", "state"}),
	}
	m.Registry.MustRegister(m.Matches, m.Runs, m.StepDuration)
	return m
}

// ObserveMatch counts one match attempt: "matched", "no_match" or "extraction_failed".
func (m *Metrics) ObserveMatch(outcome string) {
	m.Matches.WithLabelValues(outcome).Inc()
}

// OnStatus records terminal runs and their step durations.
func (m *Metrics) OnStatus(s engine.Status) {
	if !s.State.Terminal() {
		return
	}
	m.Runs.WithLabelValues(s.TemplateID, string(s.State)).Inc()
	for _, o := range s.Steps {
		if o.EndedAt.IsZero() {
			continue
		}
		m.StepDuration.WithLabelValues(string(o.Action), string(o.State)).Observe(o.Duration().Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
