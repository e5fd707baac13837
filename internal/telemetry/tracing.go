// Tracing wraps OpenTelemetry spans and metrics for the components whose
// work is worth sampling in a trace (C2/C3 model invocations). Grounded on
// the teacher's runtime/agent/telemetry/clue.go ClueTracer/ClueMetrics, with
// the goa.design/clue logging half dropped (see DESIGN.md) and only the
// OTEL-native span/counter wrapping kept.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans under a fixed instrumentation name. Uses the global
// TracerProvider; callers that want real export configure it via
// otel.SetTracerProvider before invoking anything that calls Start.
type Tracer struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// NewTracer constructs a Tracer named for one instrumented package.
func NewTracer(instrumentationName string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

// Span wraps an in-flight span so callers don't import otel/trace directly.
type Span struct {
	span trace.Span
}

// Start opens a span named name with the given string attributes
// (k1, v1, k2, v2, ...).
func (t *Tracer) Start(ctx context.Context, name string, attrs ...string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(tagsToAttrs(attrs)...))
	return ctx, Span{span: span}
}

// End closes the span, recording err as its status when non-nil.
func (s Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// IncCounter increments a named counter by 1, tagged with attrs
// (k1, v1, k2, v2, ...).
func (t *Tracer) IncCounter(ctx context.Context, name string, attrs ...string) {
	counter, err := t.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(tagsToAttrs(attrs)...))
}

// RecordDuration records a histogram sample in seconds, tagged with attrs.
func (t *Tracer) RecordDuration(ctx context.Context, name string, d time.Duration, attrs ...string) {
	histogram, err := t.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(ctx, d.Seconds(), metric.WithAttributes(tagsToAttrs(attrs)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}
