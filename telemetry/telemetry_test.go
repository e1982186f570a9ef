package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), "order-relay", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// the grpc exporter connects lazily, so no collector is needed
	shutdown, err := Init(context.Background(), "order-relay", "127.0.0.1:4317")
	require.NoError(t, err)
	assert.NotEqual(t, prev, otel.GetTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdown(ctx)
}
