package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	ConversionTotal      *prometheus.CounterVec
	ConversionDurationMs *prometheus.HistogramVec
	StepDurationMs       *prometheus.HistogramVec
	StepErrorTotal       *prometheus.CounterVec
	ChainHops            prometheus.Histogram
	RouteLookupTotal     *prometheus.CounterVec
	FilterActionTotal    *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
	CircuitState         *prometheus.GaugeVec
	RegisteredAdapters   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConversionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "protobridge_conversion_total",
			Help: "Total number of conversions processed.",
		}, []string{"source", "target", "direction", "status"}),

		ConversionDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "protobridge_conversion_duration_ms",
			Help:    "End-to-end conversion duration in milliseconds, including routing.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"source", "target"}),

		StepDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "protobridge_step_duration_ms",
			Help:    "Duration of a single adapter invocation in milliseconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 50, 250},
		}, []string{"edge", "direction"}),

		StepErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "protobridge_step_error_total",
			Help: "Total adapter invocations that returned an error.",
		}, []string{"edge", "direction"}),

		ChainHops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "protobridge_chain_hops",
			Help:    "Number of adapters in resolved chains.",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
		}),

		RouteLookupTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "protobridge_route_lookup_total",
			Help: "Total route searches by outcome.",
		}, []string{"result"}),

		FilterActionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "protobridge_filter_action_total",
			Help: "Total filter actions taken.",
		}, []string{"filter", "action"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "protobridge_rate_limit_hit_total",
			Help: "Total requests rejected by rate limits or quotas.",
		}, []string{"dimension", "client"}),

		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "protobridge_circuit_state",
			Help: "Circuit breaker state per adapter edge (0 closed, 1 open, 2 half-open).",
		}, []string{"edge"}),

		RegisteredAdapters: f.NewGauge(prometheus.GaugeOpts{
			Name: "protobridge_registered_adapters",
			Help: "Number of adapters currently registered.",
		}),
	}
}

// RecordConversion records metrics for a completed conversion request.
func (m *Metrics) RecordConversion(labels ConversionLabels) {
	m.ConversionTotal.WithLabelValues(
		labels.Source, labels.Target, labels.Direction, labels.Status,
	).Inc()

	m.ConversionDurationMs.WithLabelValues(
		labels.Source, labels.Target,
	).Observe(labels.DurationMs)

	if labels.Hops >= 0 {
		m.ChainHops.Observe(float64(labels.Hops))
	}
}

// RecordStep records one adapter invocation.
func (m *Metrics) RecordStep(edge, direction string, durationMs float64, failed bool) {
	m.StepDurationMs.WithLabelValues(edge, direction).Observe(durationMs)
	if failed {
		m.StepErrorTotal.WithLabelValues(edge, direction).Inc()
	}
}

// RecordRouteLookup records a route search outcome: "found" or "not_found".
func (m *Metrics) RecordRouteLookup(result string) {
	m.RouteLookupTotal.WithLabelValues(result).Inc()
}

// RecordFilterAction records a filter action metric.
func (m *Metrics) RecordFilterAction(filter, action string) {
	m.FilterActionTotal.WithLabelValues(filter, action).Inc()
}

// RecordRateLimitHit records a rejected request by limit dimension.
func (m *Metrics) RecordRateLimitHit(dimension, client string) {
	m.RateLimitHitTotal.WithLabelValues(dimension, client).Inc()
}

// SetCircuitState exports a breaker state (0 closed, 1 open, 2 half-open).
func (m *Metrics) SetCircuitState(edge string, state int) {
	m.CircuitState.WithLabelValues(edge).Set(float64(state))
}

func (m *Metrics) SetRegisteredAdapters(n int) {
	m.RegisteredAdapters.Set(float64(n))
}

// ConversionLabels holds the label values for recording a conversion.
// Hops is -1 when no route was resolved.
type ConversionLabels struct {
	Source     string
	Target     string
	Direction  string
	Status     string
	DurationMs float64
	Hops       int
}
