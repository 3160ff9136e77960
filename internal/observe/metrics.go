// Package observe provides the service's OpenTelemetry metric instruments
// and the Prometheus bridge that exposes them on /metrics.
//
// Tests should build [Metrics] with [NewMetrics] over a ManualReader or a
// noop provider to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/windfall/engapp_service"

// Metrics holds all metric instruments for the service.
type Metrics struct {
	// AssessmentsStarted counts sessions created.
	AssessmentsStarted metric.Int64Counter

	// PhaseSubmissions counts submissions. Attributes: phase, outcome
	// (advanced, retry, error).
	PhaseSubmissions metric.Int64Counter

	// AssessmentsCompleted counts completions. Attribute: level.
	AssessmentsCompleted metric.Int64Counter

	// AssessmentsAbandoned counts sessions closed by the idle sweep.
	AssessmentsAbandoned metric.Int64Counter

	// CooldownRejections counts start attempts refused by the cooldown gate.
	CooldownRejections metric.Int64Counter

	// LanguageFallbacks counts Phase 3 results produced by the heuristic
	// fallback. Attribute: provider.
	LanguageFallbacks metric.Int64Counter

	// ProviderDuration tracks external call latency. Attributes: provider, kind.
	ProviderDuration metric.Float64Histogram

	// ProviderErrors counts failed external calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// HTTPRequestDuration tracks request latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssessmentsStarted, err = m.Int64Counter("engapp.assessment.started",
		metric.WithDescription("Assessment sessions started."),
	); err != nil {
		return nil, err
	}
	if met.PhaseSubmissions, err = m.Int64Counter("engapp.assessment.phase_submissions",
		metric.WithDescription("Phase submissions by phase and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AssessmentsCompleted, err = m.Int64Counter("engapp.assessment.completed",
		metric.WithDescription("Assessments completed by resulting level."),
	); err != nil {
		return nil, err
	}
	if met.AssessmentsAbandoned, err = m.Int64Counter("engapp.assessment.abandoned",
		metric.WithDescription("Sessions marked abandoned by the idle sweep."),
	); err != nil {
		return nil, err
	}
	if met.CooldownRejections, err = m.Int64Counter("engapp.assessment.cooldown_rejections",
		metric.WithDescription("Start attempts refused by the cooldown gate."),
	); err != nil {
		return nil, err
	}
	if met.LanguageFallbacks, err = m.Int64Counter("engapp.language.fallbacks",
		metric.WithDescription("Language analyses answered by the heuristic fallback."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("engapp.provider.duration",
		metric.WithDescription("Latency of external provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("engapp.provider.errors",
		metric.WithDescription("Failed external provider calls."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("engapp.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNop returns instruments that record nothing.
func NewNop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordPhaseSubmission increments the submission counter.
func (m *Metrics) RecordPhaseSubmission(ctx context.Context, phase, outcome string) {
	m.PhaseSubmissions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCompletion increments the completion counter for level.
func (m *Metrics) RecordCompletion(ctx context.Context, level string) {
	m.AssessmentsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}

// RecordProviderCall records the latency of one external call and counts it
// as an error when err is non-nil.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, seconds float64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	)
	m.ProviderDuration.Record(ctx, seconds, attrs)
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, attrs)
	}
}

// RecordLanguageFallback increments the fallback counter.
func (m *Metrics) RecordLanguageFallback(ctx context.Context, provider string) {
	m.LanguageFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
