package tracing

import (
	"context"
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_None(t *testing.T) {
	cfg := config.DefaultConfig()
	shutdown, err := Init(context.Background(), &cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TracingExporter = "stdout"
	cfg.TracingSampleRatio = 1
	shutdown, err := Init(context.Background(), &cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "test")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TracingExporter = "zipkin"
	_, err := Init(context.Background(), &cfg)
	assert.ErrorContains(t, err, "zipkin")
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(2))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
