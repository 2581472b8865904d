package redis

import (
	"context"
	"time"

	"goalplay-engagement/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingDelay    = 3 * time.Second
)

func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	}
}

// New connects to REDIS.ADDR. An unreachable server is logged and left to the
// readiness probe; the client reconnects on its own.
func New(lc fx.Lifecycle, c *config.Config, log *zap.Logger) *redis.Client {
	log = log.With(zap.String("addr", c.Redis.Addr), zap.Int("db", c.Redis.DB))
	rdb := redis.NewClient(Options(c))

	if err := WaitReady(context.Background(), rdb, pingAttempts, pingDelay, log); err != nil {
		log.Error("[Redis] not reachable, continuing without a verified connection", zap.Error(err))
	} else {
		log.Info("[Redis] connected")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb
}

// WaitReady pings rdb until it answers, attempts run out or ctx is done.
func WaitReady(ctx context.Context, rdb redis.UniversalClient, attempts int, delay time.Duration, log *zap.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn("[Redis] not ready, retrying", zap.Int("attempt", i), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
