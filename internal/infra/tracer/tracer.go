package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"chatsync/internal/infra/config"
)

const tracerName = "chatsync"

// Setup installs the global TracerProvider and returns its shutdown
// function. Spans carry the client id as service.instance.id so traces from
// concurrent chat clients can be told apart. When cfg.Enabled is false, or
// the exporter is noop, a noop provider is installed.
func Setup(ctx context.Context, cfg config.TracerConfig, clientID string) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	case "noop", "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	tp := newProvider(sdktrace.WithBatcher(exporter), cfg.SampleRatio, clientID)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newProvider(processor sdktrace.TracerProviderOption, ratio float64, clientID string) *sdktrace.TracerProvider {
	sampler := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", tracerName)}
	if clientID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", clientID))
	}
	return sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
}

// StartSpan starts a named span on the chatsync tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// Run wraps fn in a span, recording its error or marking it OK.
func Run[T any](ctx context.Context, name string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, span := StartSpan(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		RecordError(span, err)
		return v, err
	}
	SetOK(span)
	return v, nil
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK sets the span status to OK.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SessionAttr tags a span with the chat session id.
func SessionAttr(sessionID string) attribute.KeyValue {
	return attribute.String("chat.session_id", sessionID)
}

// StringAttr is a convenience for attribute.String.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// IntAttr is a convenience for attribute.Int.
func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
