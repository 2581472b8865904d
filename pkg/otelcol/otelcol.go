package otelcol

import (
	"context"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewTracerProvider,
		func(tp *trace.TracerProvider) oteltrace.TracerProvider { return tp },
		ProvideMeter,
	),
)

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	return trace.NewTracerProvider(opts...)
}

// NewTracerProvider installs the global tracer provider and W3C propagation.
// Without OTEL.ADDR spans are still created, so trace ids reach the logs,
// but nothing is exported.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	if cfg.Otel.Addr != "" {
		var err error
		switch cfg.Otel.Protocol {
		case "http":
			exporter, err = exporters.ProvideHttp(cfg)
		default:
			exporter, err = exporters.ProvideGrpc(cfg)
		}
		if err != nil {
			return nil, err
		}
		zap.L().Info("[Otel] exporting traces", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

// ProvideMeter returns the global meter provider. Application metrics are
// exported through prometheus at /metrics.
func ProvideMeter() metric.MeterProvider {
	return otel.GetMeterProvider()
}
