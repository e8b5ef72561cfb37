package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer abstracts span creation so callers can run with tracing disabled
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
}

// Span is the minimal span surface the pipeline uses
type Span interface {
	End()
	SetAttributes(attrs ...attribute.KeyValue)
	NoticeError(err error)
}

// SpanOption configures a span at creation time
type SpanOption func(*spanConfig)

type spanConfig struct {
	attrs []attribute.KeyValue
}

// WithAttributes sets initial span attributes
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) {
		c.attrs = append(c.attrs, attrs...)
	}
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer backed by the global otel tracer provider
func NewTracer(name string) Tracer {
	return &otelTracer{tracer: otel.Tracer(name)}
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	cfg := &spanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(cfg.attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

type noopTracer struct{}

// NewNoopTracer returns a tracer that records nothing
func NewNoopTracer() Tracer {
	return &noopTracer{}
}

func (t *noopTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, &noopSpan{}
}

type noopSpan struct{}

func (s *noopSpan) End()                                  {}
func (s *noopSpan) SetAttributes(_ ...attribute.KeyValue) {}
func (s *noopSpan) NoticeError(_ error)                   {}
