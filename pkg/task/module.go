package task

import (
	"context"
	"fmt"

	"goalplay-engagement/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues weights the worker's queues. Provisioning runs on critical,
// notifications on low.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

var Client = fx.Module("asynq:client",
	fx.Provide(NewClient, NewEnqueuer),
)

var Server = fx.Module("asynq:server",
	fx.Provide(asynq.NewServeMux),
	fx.Invoke(StartServer),
)

func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
}

func NewClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*asynq.Client, error) {
	client := asynq.NewClient(RedisOpt(cfg))
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("asynq ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("[Asynq] client connected", zap.String("addr", cfg.Redis.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// ServerConfig is the asynq configuration used by the worker binary.
func ServerConfig(cfg *config.Config, log *zap.Logger) asynq.Config {
	return asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          Queues,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		Logger:          log.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			retried, _ := asynq.GetRetryCount(ctx)
			log.Error("[Asynq] task failed",
				zap.String("task_type", t.Type()),
				zap.String("task_id", id),
				zap.Int("retried", retried),
				zap.Error(err),
			)
		}),
	}
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux, log *zap.Logger) {
	srv := asynq.NewServer(RedisOpt(cfg), ServerConfig(cfg, log))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Start returns once the processors are running.
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("start asynq server: %w", err)
			}
			log.Info("[Asynq] worker started",
				zap.String("addr", cfg.Redis.Addr),
				zap.Int("concurrency", cfg.Worker.Concurrency),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
}
