package bwsrv

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/advdv/bwire"
)

// NewTracerProvider creates and configures the OpenTelemetry TracerProvider.
// Supported exporters via BW_OTEL_EXPORTER env var: "stdout" (default), "none".
// Shutdown is handled automatically via fx.Lifecycle.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	switch env.otelExporter() {
	case "none":
		return noop.NewTracerProvider(), nil
	case "stdout", "":
	default:
		return nil, fmt.Errorf("unsupported BW_OTEL_EXPORTER: %q (supported: stdout, none)", env.otelExporter())
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(env.serviceName()),
		)),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// NewPropagator creates the W3C TraceContext + Baggage composite propagator.
func NewPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// headerCarrier adapts a header list to the propagation.TextMapCarrier interface.
type headerCarrier struct{ h *bwire.Header }

func (c headerCarrier) Get(key string) string { return c.h.Get(key) }
func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.h))
	for _, f := range *c.h {
		keys = append(keys, f.Name)
	}

	return keys
}

// startSpan extracts the remote span context from the request head and starts a server span for the request cycle.
func startSpan(
	ctx context.Context, tracer trace.Tracer, prop propagation.TextMapPropagator, req *bwire.Request,
) (context.Context, trace.Span) {
	ctx = prop.Extract(ctx, headerCarrier{&req.Header})

	return tracer.Start(ctx, req.Method+" "+req.Target,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.Target),
			semconv.NetworkProtocolVersion(fmt.Sprintf("%d.%d", req.Version.Major, req.Version.Minor)),
			attribute.Int64("bwire.ticket", int64(req.Ticket())),
			attribute.String("bwire.framing", req.Body.Framing().Kind.String()),
		))
}

// endSpan records the outcome of a request cycle on its span.
func endSpan(span trace.Span, status int, err error) {
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if err != nil {
		span.RecordError(err)
	}
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
	}

	span.End()
}
