// Package tracing emits OpenTelemetry spans for trial runs.
//
// A trial produces one root span with a child span per phase (mutate,
// execute). Tracing is optional: the runner falls back to NoopTracer when
// nothing is wired.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
var (
	attrTrialID  = attribute.Key("trial.id")
	attrFailure  = attribute.Key("trial.failure")
	attrPhase    = attribute.Key("phase.name")
	attrMutation = attribute.Key("phase.mutation")
)

// Tracer starts spans around trial runs.
type Tracer interface {
	// StartTrial opens the root span for one trial.
	StartTrial(ctx context.Context, trialID, failure string) (context.Context, Span)
	// StartPhase opens a child span for one phase of a trial.
	StartPhase(ctx context.Context, trialID, phase, mutation string) (context.Context, Span)
}

// Span is the slice of the OpenTelemetry span surface the runner needs.
type Span interface {
	// End completes the span.
	End()
	// SetError records err and flips the span status to Error. Nil is
	// ignored.
	SetError(err error)
	// SetStatus sets the span status.
	SetStatus(code codes.Code, description string)
	// SetAttributes adds attributes to the span.
	SetAttributes(attrs ...attribute.KeyValue)
	// AddEvent records a point-in-time event on the span.
	AddEvent(name string, attrs ...attribute.KeyValue)
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Tracer = NoopTracer{}
)

// OTelTracer emits spans through an OpenTelemetry tracer provider.
type OTelTracer struct {
	tracer trace.Tracer
}

// Option configures an OTelTracer.
type Option func(*tracerSettings)

type tracerSettings struct {
	scope    string
	provider trace.TracerProvider
}

// WithScopeName overrides the instrumentation scope name. The default is
// "saboteur".
func WithScopeName(name string) Option {
	return func(s *tracerSettings) { s.scope = name }
}

// WithTracerProvider routes spans through tp instead of the globally
// registered provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *tracerSettings) { s.provider = tp }
}

// NewOTelTracer creates a tracer. Without options, spans go through the
// global provider.
func NewOTelTracer(opts ...Option) *OTelTracer {
	settings := tracerSettings{scope: "saboteur"}
	for _, opt := range opts {
		opt(&settings)
	}

	tp := settings.provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: tp.Tracer(settings.scope)}
}

// StartTrial opens the root span for one trial.
func (t *OTelTracer) StartTrial(ctx context.Context, trialID, failure string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, "trial.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrTrialID.String(trialID),
			attrFailure.String(failure),
		),
	)
	return ctx, otelSpan{span}
}

// StartPhase opens a child span for one phase of a trial. The returned
// context parents any spans the phase opens itself.
func (t *OTelTracer) StartPhase(ctx context.Context, trialID, phase, mutation string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, "phase.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrTrialID.String(trialID),
			attrPhase.String(phase),
			attrMutation.String(mutation),
		),
	)
	return ctx, otelSpan{span}
}

// otelSpan adapts a trace.Span to the Span interface.
type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() {
	s.span.End()
}

func (s otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// NoopTracer discards every span. It is the runner's default when no tracer
// is configured.
type NoopTracer struct{}

func (NoopTracer) StartTrial(ctx context.Context, trialID, failure string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) StartPhase(ctx context.Context, trialID, phase, mutation string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                   {}
func (noopSpan) SetError(error)                         {}
func (noopSpan) SetStatus(codes.Code, string)           {}
func (noopSpan) SetAttributes(...attribute.KeyValue)    {}
func (noopSpan) AddEvent(string, ...attribute.KeyValue) {}
