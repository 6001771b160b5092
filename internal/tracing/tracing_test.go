package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoneExporterIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: "none"})
	require.NoError(t, err)
	_, span := p.Tracer().Start(context.Background(), "op")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestStdoutExporterRecordsSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	_, span := p.Tracer().Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestUnknownExporterFails(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "zipkin"})
	require.Error(t, err)
}
