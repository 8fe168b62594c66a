package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChargeMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChargeMetrics(reg)

	m.IncOutcome("ok")
	m.IncOutcome("ok")
	m.IncOutcome("INSUFFICIENT_BALANCE")
	m.IncOutcome("")
	m.ObserveBatchSize(3)
	m.IncTransferPublishFailure()

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("INSUFFICIENT_BALANCE")); got != 1 {
		t.Fatalf("expected 1 insufficient outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty label to normalize to unknown, got %v", got)
	}
	if got := testutil.ToFloat64(m.transferFailures); got != 1 {
		t.Fatalf("expected 1 transfer failure, got %v", got)
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var charges *ChargeMetrics
	charges.IncOutcome("ok")
	charges.ObserveBatchSize(1)
	charges.IncTransferPublishFailure()

	var worker *WorkerMetrics
	worker.ObserveCycle(time.Second)
	worker.IncSuccess()
	worker.IncFailure()

	unregistered := NewChargeMetrics(nil)
	unregistered.IncOutcome("ok")
}
