package otelcol

import (
	"context"
	"testing"

	"goalplay-engagement/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
)

func TestTracerProviderWithoutExporter(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewTracerProvider(lc, config.Default())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
	require.Same(t, tp, otel.GetTracerProvider())
}
