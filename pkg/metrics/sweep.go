package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "onboarding"

// SweepMetrics records sweep runs, per-match outcomes and notification delivery.
type SweepMetrics struct {
	duration      *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	staleReleased prometheus.Counter
	inProgress    prometheus.Gauge
	notifications *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of deadline sweeps in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Completed deadline sweeps by trigger and result.",
	}, []string{"trigger", "result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_evaluations_total",
		Help:      "Per-match evaluation outcomes.",
	}, []string{"outcome"})
	staleReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_claims_released_total",
		Help:      "Claims released after exceeding the stale claim timeout.",
	})
	inProgress := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sweep_in_progress",
		Help:      "1 while a sweep is running on this instance.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications by kind and delivery result.",
	}, []string{"kind", "result"})
	reg.MustRegister(duration, runs, outcomes, staleReleased, inProgress, notifications)
	return &SweepMetrics{
		duration:      duration,
		runs:          runs,
		outcomes:      outcomes,
		staleReleased: staleReleased,
		inProgress:    inProgress,
		notifications: notifications,
	}
}

// ObserveSweep records one finished sweep.
func (m *SweepMetrics) ObserveSweep(trigger, result string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	m.duration.WithLabelValues(trigger).Observe(duration.Seconds())
	m.runs.WithLabelValues(trigger, normalizeLabel(result)).Inc()
}

// AddOutcome counts n evaluations that ended with outcome.
func (m *SweepMetrics) AddOutcome(outcome string, n int) {
	if m == nil || m.outcomes == nil || n <= 0 {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

func (m *SweepMetrics) AddStaleReleased(n int) {
	if m == nil || m.staleReleased == nil || n <= 0 {
		return
	}
	m.staleReleased.Add(float64(n))
}

func (m *SweepMetrics) SetInProgress(running bool) {
	if m == nil || m.inProgress == nil {
		return
	}
	if running {
		m.inProgress.Set(1)
		return
	}
	m.inProgress.Set(0)
}

// IncNotification counts a notification by kind and result (sent, failed, dropped).
func (m *SweepMetrics) IncNotification(kind, result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
