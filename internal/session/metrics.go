package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/pipboy3000/usual-tone-of-voice/session"

type metrics struct {
	tracer     trace.Tracer
	started    metric.Int64Counter
	outcomes   metric.Int64Counter
	warnings   metric.Int64Counter
	recorded   metric.Float64Histogram
	processing metric.Float64Histogram
}

// newMetrics uses the global providers; with none installed every
// instrument is a no-op.
func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{tracer: otel.Tracer(instrumentationName)}
	m.started, _ = meter.Int64Counter("tonevoice_sessions_started_total",
		metric.WithDescription("Recording sessions started"))
	m.outcomes, _ = meter.Int64Counter("tonevoice_sessions_finished_total",
		metric.WithDescription("Sessions finished by outcome"))
	m.warnings, _ = meter.Int64Counter("tonevoice_rewrite_fallbacks_total",
		metric.WithDescription("Rewrite failures that fell back to normalized text"))
	m.recorded, _ = meter.Float64Histogram("tonevoice_recording_active_seconds",
		metric.WithDescription("Active speech per recording"), metric.WithUnit("s"))
	m.processing, _ = meter.Float64Histogram("tonevoice_processing_seconds",
		metric.WithDescription("Time from stop to result"), metric.WithUnit("s"))
	return m
}

func (m *metrics) sessionStarted(ctx context.Context) {
	if m.started != nil {
		m.started.Add(ctx, 1)
	}
}

func (m *metrics) sessionFinished(ctx context.Context, outcome string, kind Kind) {
	if m.outcomes == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if kind != KindNone {
		attrs = append(attrs, attribute.String("kind", string(kind)))
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) rewriteFallback(ctx context.Context, kind Kind) {
	if m.warnings != nil {
		m.warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (m *metrics) observe(ctx context.Context, active, processing float64) {
	if m.recorded != nil {
		m.recorded.Record(ctx, active)
	}
	if m.processing != nil {
		m.processing.Record(ctx, processing)
	}
}
