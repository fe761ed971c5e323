package bwsrv

import (
	"context"
	"strings"
	"testing"

	"github.com/advdv/bwire"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx/fxtest"
)

func TestNewTracerProvider(t *testing.T) {
	t.Run("stdout exporter", func(t *testing.T) {
		lc := fxtest.NewLifecycle(t)
		tp, err := NewTracerProvider(lc, testEnv{otelExp: "stdout"})
		require.NoError(t, err)
		require.IsType(t, &sdktrace.TracerProvider{}, tp)

		lc.RequireStart()
		lc.RequireStop()
	})

	t.Run("empty defaults to stdout", func(t *testing.T) {
		tp, err := NewTracerProvider(fxtest.NewLifecycle(t), testEnv{})
		require.NoError(t, err)
		require.IsType(t, &sdktrace.TracerProvider{}, tp)
	})

	t.Run("none", func(t *testing.T) {
		tp, err := NewTracerProvider(fxtest.NewLifecycle(t), testEnv{otelExp: "none"})
		require.NoError(t, err)

		_, span := tp.Tracer("x").Start(context.Background(), "noop")
		require.False(t, span.SpanContext().IsValid())
	})

	t.Run("unsupported exporter", func(t *testing.T) {
		_, err := NewTracerProvider(fxtest.NewLifecycle(t), testEnv{otelExp: "xray"})
		require.EqualError(t, err, `unsupported BW_OTEL_EXPORTER: "xray" (supported: stdout, none)`)
	})
}

func TestHeaderCarrier(t *testing.T) {
	h := bwire.Header{{Name: "Host", Value: "a"}, {Name: "traceparent", Value: "x"}}
	c := headerCarrier{&h}

	require.Equal(t, "x", c.Get("Traceparent"))
	require.Equal(t, []string{"Host", "traceparent"}, c.Keys())

	c.Set("Baggage", "k=v")
	require.Equal(t, "k=v", h.Get("baggage"))
}

func TestSpanForRequest(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	conn := bwire.NewConn(struct {
		*strings.Reader
		discard
	}{strings.NewReader("POST /items HTTP/1.1\r\nHost: a\r\nTraceparent: " + parent +
		"\r\nContent-Length: 2\r\n\r\nhi"), discard{}}, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	require.NoError(t, err)

	ctx, span := startSpan(context.Background(), tp.Tracer("test"), NewPropagator(), req)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	require.Equal(t, span, trace.SpanFromContext(ctx))

	endSpan(span, 503, nil)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "POST /items", ended[0].Name())
	require.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
	require.Equal(t, "00f067aa0ba902b7", ended[0].Parent().SpanID().String())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Contains(t, ended[0].Attributes(), attribute.String("bwire.framing", "FixedLength"))
	require.Contains(t, ended[0].Attributes(), attribute.Int("http.response.status_code", 503))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
