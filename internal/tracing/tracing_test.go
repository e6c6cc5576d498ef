package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		p, err := NewProvider(context.Background(), Config{Exporter: exporter})
		require.NoError(t, err)
		require.False(t, p.Enabled())
		require.NotNil(t, p.Tracer())

		_, span := p.Tracer().Start(context.Background(), "op")
		require.False(t, span.SpanContext().IsValid())
		span.End()
		require.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestNewProvider_Stdout(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: ExporterStdout, SampleRate: 1})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "jaeger"})
	require.Error(t, err)
}
