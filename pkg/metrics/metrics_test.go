package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMustRegisterRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	_ = families // collectors with no observations yet still register cleanly
}

func TestMustRegisterPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic registering the same collectors twice")
		}
	}()
	MustRegister(reg)
}

func TestReconcileIterationsTotalIncrementsByOutcome(t *testing.T) {
	ReconcileIterationsTotal.Reset()
	ReconcileIterationsTotal.WithLabelValues("transition").Inc()
	ReconcileIterationsTotal.WithLabelValues("transition").Inc()
	ReconcileIterationsTotal.WithLabelValues("wait").Inc()

	if got := counterValue(t, ReconcileIterationsTotal.WithLabelValues("transition")); got != 2 {
		t.Fatalf("got %v transitions, want 2", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("writing counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
