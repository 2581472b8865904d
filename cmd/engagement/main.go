package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"goalplay-engagement/internal/httpapi"
	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/gen"
	"goalplay-engagement/pkg/health"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/middleware"
	"goalplay-engagement/pkg/otelcol"
	"goalplay-engagement/pkg/profiling"
	"goalplay-engagement/pkg/redis"
	"goalplay-engagement/pkg/sequence"
	"goalplay-engagement/pkg/server"
	"goalplay-engagement/pkg/task"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/bootstrap"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/provisioning"
	"goalplay-engagement/services/referral"
	scheduled "goalplay-engagement/services/task"
	"goalplay-engagement/services/xp"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		health.Module,
		middleware.Module,
		gen.Module,
		notification.Module,
		credits.Module,
		xp.Module,
		badge.Module,
		bootstrap.Module,
		daily.Module,
		referral.Module,
		provisioning.Module,
		scheduled.Module,
		httpapi.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
