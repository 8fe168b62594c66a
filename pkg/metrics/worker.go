package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records metadata for charge worker cycles.
type WorkerMetrics struct {
	duration prometheus.Histogram
	success  prometheus.Counter
	failure  prometheus.Counter
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_cycle_duration_seconds",
		Help:    "Duration of charge worker cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	success := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_cycle_success_total",
		Help: "Successful charge worker cycles.",
	})
	failure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_cycle_failure_total",
		Help: "Failed charge worker cycles.",
	})
	reg.MustRegister(duration, success, failure)
	return &WorkerMetrics{duration: duration, success: success, failure: failure}
}

// ObserveCycle records the duration of a worker cycle.
func (w *WorkerMetrics) ObserveCycle(duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.Observe(duration.Seconds())
}

// IncSuccess increments the cycle success counter.
func (w *WorkerMetrics) IncSuccess() {
	if w == nil || w.success == nil {
		return
	}
	w.success.Inc()
}

// IncFailure increments the cycle failure counter.
func (w *WorkerMetrics) IncFailure() {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.Inc()
}
