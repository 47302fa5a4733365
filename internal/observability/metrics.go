package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for workflow and capability activity.
type Metrics struct {
	transitions           *prometheus.CounterVec
	actionDuration        *prometheus.HistogramVec
	actionFailures        *prometheus.CounterVec
	capabilityDuration    *prometheus.HistogramVec
	capabilityFailures    *prometheus.CounterVec
	recommendationRetries *prometheus.CounterVec
	lockWaits             prometheus.Histogram
}

// MustNewMetrics registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "workflow",
			Name:      "status_transitions_total",
			Help:      "Project status transitions by source and target status.",
		}, []string{"from", "to"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spaces",
			Subsystem: "workflow",
			Name:      "action_duration_seconds",
			Help:      "Wall-clock duration of workflow actions, lock wait included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"action", "outcome"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "workflow",
			Name:      "action_failures_total",
			Help:      "Workflow actions that failed, by error class.",
		}, []string{"action", "reason"}),
		capabilityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spaces",
			Subsystem: "capability",
			Name:      "call_duration_seconds",
			Help:      "Duration of AI and product search calls.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 90},
		}, []string{"port", "status"}),
		capabilityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "capability",
			Name:      "failures_total",
			Help:      "Capability calls that failed, by kind.",
		}, []string{"port", "kind"}),
		recommendationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spaces",
			Subsystem: "workflow",
			Name:      "recommendation_retries_total",
			Help:      "Top-up retries issued when a generation path came back short.",
		}, []string{"path", "outcome"}),
		lockWaits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spaces",
			Subsystem: "workflow",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-project lock.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.transitions = register(reg, m.transitions)
	m.actionDuration = register(reg, m.actionDuration)
	m.actionFailures = register(reg, m.actionFailures)
	m.capabilityDuration = register(reg, m.capabilityDuration)
	m.capabilityFailures = register(reg, m.capabilityFailures)
	m.recommendationRetries = register(reg, m.recommendationRetries)
	m.lockWaits = register(reg, m.lockWaits)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveAction(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.actionDuration.WithLabelValues(action, outcome).Observe(d.Seconds())
}

func (m *Metrics) IncActionFailure(action, reason string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) ObserveCapability(port, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.capabilityDuration.WithLabelValues(port, status).Observe(d.Seconds())
}

func (m *Metrics) IncCapabilityFailure(port, kind string) {
	if m == nil {
		return
	}
	m.capabilityFailures.WithLabelValues(port, kind).Inc()
}

func (m *Metrics) IncRecommendationRetry(path, outcome string) {
	if m == nil {
		return
	}
	m.recommendationRetries.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaits.Observe(d.Seconds())
}
