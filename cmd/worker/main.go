package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/gen"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/otelcol"
	"goalplay-engagement/pkg/profiling"
	"goalplay-engagement/pkg/redis"
	"goalplay-engagement/pkg/sequence"
	"goalplay-engagement/pkg/task"
	"goalplay-engagement/services/activity"
	"goalplay-engagement/services/badge"
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
		task.Server,
		sequence.Module,
		gen.Module,
		notification.Module,
		notification.Worker,
		credits.Module,
		xp.Module,
		badge.Module,
		badge.Worker,
		daily.Module,
		referral.Module,
		activity.Module,
		provisioning.Module,
		provisioning.Worker,
		scheduled.Module,
		scheduled.Worker,
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
