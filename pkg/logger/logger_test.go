package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestTraceFieldsWithoutSpan(t *testing.T) {
	require.Empty(t, TraceFields(context.Background()))
}

func TestTraceFieldsWithSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	require.Equal(t, "trace_id", fields[0].Key)
	require.Equal(t, sc.TraceID().String(), fields[0].String)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	require.NotNil(t, FromContext(context.Background(), nil))
	require.NotNil(t, FromContext(context.Background(), zap.NewNop()))
}
