package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to read metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewMetricsWith(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	if m.ConversionTotal == nil {
		t.Error("ConversionTotal should not be nil")
	}
	if m.StepDurationMs == nil {
		t.Error("StepDurationMs should not be nil")
	}
	if m.ChainHops == nil {
		t.Error("ChainHops should not be nil")
	}
	if m.RateLimitHitTotal == nil {
		t.Error("RateLimitHitTotal should not be nil")
	}

	// Registering twice against the same registry must fail loudly.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetricsWith(reg)
}

func TestRecordConversion(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordConversion(ConversionLabels{
		Source:     "HTTP@1.1",
		Target:     "JSON@1.0",
		Direction:  "forward",
		Status:     "200",
		DurationMs: 3,
		Hops:       2,
	})
	m.RecordConversion(ConversionLabels{
		Source:    "HTTP@1.1",
		Target:    "CSV@1.0",
		Direction: "forward",
		Status:    "404",
		Hops:      -1,
	})

	counter, err := m.ConversionTotal.GetMetricWithLabelValues("HTTP@1.1", "JSON@1.0", "forward", "200")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	if v := counterValue(t, counter); v != 1 {
		t.Errorf("expected conversion count 1, got %v", v)
	}

	var metric dto.Metric
	if err := m.ChainHops.Write(&metric); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("expected 1 hops sample (unrouted conversions skipped), got %d", got)
	}
}

func TestRecordStep(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordStep("JSON@1.0->XML@1.0", "forward", 0.4, false)
	m.RecordStep("JSON@1.0->XML@1.0", "forward", 0.2, true)

	errs, _ := m.StepErrorTotal.GetMetricWithLabelValues("JSON@1.0->XML@1.0", "forward")
	if v := counterValue(t, errs); v != 1 {
		t.Errorf("expected 1 step error, got %v", v)
	}
}

func TestRecordFilterAction(t *testing.T) {
	filterTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_filter_action",
		Help: "Test",
	}, []string{"filter", "action"})

	m := &Metrics{FilterActionTotal: filterTotal}
	m.RecordFilterAction("secrets", "block")

	counter, _ := filterTotal.GetMetricWithLabelValues("secrets", "block")
	if v := counterValue(t, counter); v != 1 {
		t.Errorf("expected filter action count 1, got %v", v)
	}
}

func TestRecordRateLimitHitAndRouteLookup(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRateLimitHit("rpm", "acme")
	m.RecordRateLimitHit("rpm", "acme")
	m.RecordRouteLookup("not_found")

	hits, _ := m.RateLimitHitTotal.GetMetricWithLabelValues("rpm", "acme")
	if v := counterValue(t, hits); v != 2 {
		t.Errorf("expected 2 rate limit hits, got %v", v)
	}
	lookups, _ := m.RouteLookupTotal.GetMetricWithLabelValues("not_found")
	if v := counterValue(t, lookups); v != 1 {
		t.Errorf("expected 1 route lookup, got %v", v)
	}
}

func TestSetGauges(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	m.SetCircuitState("A@1.0->B@1.0", 1)
	m.SetRegisteredAdapters(4)

	var metric dto.Metric
	g, _ := m.CircuitState.GetMetricWithLabelValues("A@1.0->B@1.0")
	g.Write(&metric)
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("expected circuit gauge 1, got %v", metric.GetGauge().GetValue())
	}
	m.RegisteredAdapters.Write(&metric)
	if metric.GetGauge().GetValue() != 4 {
		t.Errorf("expected 4 adapters, got %v", metric.GetGauge().GetValue())
	}
}
