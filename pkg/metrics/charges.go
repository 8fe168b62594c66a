package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ChargeMetrics records charge engine outcomes.
type ChargeMetrics struct {
	outcomes         *prometheus.CounterVec
	batchSize        prometheus.Histogram
	transferFailures prometheus.Counter
}

// NewChargeMetrics registers the charge metrics on the provided registerer.
func NewChargeMetrics(reg prometheus.Registerer) *ChargeMetrics {
	if reg == nil {
		return &ChargeMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charge_outcomes_total",
		Help: "Charge attempts by outcome code.",
	}, []string{"outcome"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charge_batch_size",
		Help:    "Number of subscriptions per batch charge call.",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})
	transferFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transfer_publish_failures_total",
		Help: "Transfer instructions that failed to publish after a committed charge.",
	})
	reg.MustRegister(outcomes, batchSize, transferFailures)
	return &ChargeMetrics{
		outcomes:         outcomes,
		batchSize:        batchSize,
		transferFailures: transferFailures,
	}
}

// IncOutcome counts one charge attempt with the given outcome label
// ("ok" or an error code).
func (c *ChargeMetrics) IncOutcome(outcome string) {
	if c == nil || c.outcomes == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	c.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveBatchSize records the size of a batch charge call.
func (c *ChargeMetrics) ObserveBatchSize(size int) {
	if c == nil || c.batchSize == nil {
		return
	}
	c.batchSize.Observe(float64(size))
}

// IncTransferPublishFailure counts a committed charge whose transfer
// instruction could not be published.
func (c *ChargeMetrics) IncTransferPublishFailure() {
	if c == nil || c.transferFailures == nil {
		return
	}
	c.transferFailures.Inc()
}
