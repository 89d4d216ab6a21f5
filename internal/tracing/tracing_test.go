package tracing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/zjrosen/klogger/internal/config"
)

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TraceConfig{Exporter: config.ExporterNone})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_Unknown(t *testing.T) {
	_, err := Setup(context.Background(), config.TraceConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "zipkin")
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	prevWriter := stdoutWriter
	stdoutWriter = &out
	t.Cleanup(func() { stdoutWriter = prevWriter })

	shutdown, err := Setup(context.Background(), config.TraceConfig{Exporter: config.ExporterStdout})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "device.write")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, out.String(), "device.write")
}

func TestSetup_OTLPIsLazy(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// The gRPC exporter connects lazily, so an unreachable endpoint is fine
	// until spans are flushed.
	shutdown, err := Setup(context.Background(), config.TraceConfig{
		Exporter: config.ExporterOTLP,
		Endpoint: "127.0.0.1:1",
		Insecure: true,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
