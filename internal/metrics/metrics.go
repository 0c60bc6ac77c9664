// Package metrics exposes Prometheus metrics for timer sweeps, completions
// and notifications. Everything registers with the default registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskquest"

// Completion sources
const (
	SourceSweep   = "sweep"
	SourceRequest = "request"
)

// TimerSweeps counts sweep passes
var TimerSweeps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "timer_sweeps_total",
	Help:      "Total timer sweep passes.",
})

// TimerCompletions counts timers that reached zero, by what observed it
var TimerCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "timer_completions_total",
	Help:      "Total timers that ran out.",
}, []string{"source"})

// TimerSweepFailures counts tasks a sweep pass failed to advance
var TimerSweepFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "timer_sweep_failures_total",
	Help:      "Total per-task failures during timer sweeps.",
})

// NotificationsSent counts persisted notifications by type
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_sent_total",
	Help:      "Total notifications persisted and pushed.",
}, []string{"type"})

// NotificationFailures counts timer completions where at least one
// recipient could not be notified
var NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notification_failures_total",
	Help:      "Total completions with at least one failed notification.",
})

// TimerSweepDuration tracks how long a sweep pass takes
var TimerSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "timer_sweep_duration_seconds",
	Help:      "Timer sweep pass duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

// TimersActive is the number of running timers seen by the last sweep
var TimersActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "timers_active",
	Help:      "Number of running timers seen by the last sweep.",
})
