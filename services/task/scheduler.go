package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/rediskey"
	asynqtask "goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Schedule binds a task type to its cron expression.
type Schedule struct {
	Task string
	Cron string
}

func Schedules(cfg *config.Config) []Schedule {
	s := cfg.Engagement.Schedule
	return []Schedule{
		{Task: taskname.BadgeCatalogScan, Cron: s.BadgeScan},
		{Task: taskname.ReferralTierCheck, Cron: s.ReferralTiers},
		{Task: taskname.ReferralExpirySweep, Cron: s.ReferralExpiry},
	}
}

// Scheduler fires the scheduled tasks into asynq. With several workers the
// redis locker lets a single instance fire each tick, and the per-tick task
// id drops a duplicate that slips past the lock.
type Scheduler struct {
	sched    gocron.Scheduler
	enqueuer asynqtask.Enqueuer
	now      func() time.Time
	log      *zap.Logger
}

type SchedulerParams struct {
	fx.In
	Config   *config.Config
	Enqueuer asynqtask.Enqueuer
	Service  *Service
	Redis    *redis.Client    `optional:"true"`
	Logger   *zap.Logger      `optional:"true"`
	Now      func() time.Time `name:"clock" optional:"true"`
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	opts := []gocron.SchedulerOption{gocron.WithLocation(time.UTC)}
	if p.Redis != nil {
		opts = append(opts, gocron.WithDistributedLocker(NewRedisLocker(p.Redis, time.Minute)))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{sched: sched, enqueuer: p.Enqueuer, now: now, log: log}
	schedules := Schedules(p.Config)

	registry := make([]Task, 0, len(schedules))
	for _, sc := range schedules {
		name := sc.Task
		if _, err := sched.NewJob(
			gocron.CronJob(sc.Cron, false),
			gocron.NewTask(func(ctx context.Context) {
				if err := s.Fire(ctx, name); err != nil {
					s.log.Error("[Scheduler] failed to enqueue task", zap.String("task", name), zap.Error(err))
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, sc.Cron, err)
		}
		registry = append(registry, Task{Name: name, Schedule: sc.Cron, IsActive: true})
	}

	if err := p.Service.Register(context.Background(), registry...); err != nil {
		log.Warn("[Scheduler] failed to register tasks", zap.Error(err))
	}
	return s, nil
}

// Fire enqueues one run of name for the current minute.
func (s *Scheduler) Fire(ctx context.Context, name string) error {
	tick := s.now().UTC().Truncate(time.Minute)
	t := asynq.NewTask(name, nil,
		asynq.TaskID(fmt.Sprintf("%s:%d", name, tick.Unix())),
		asynq.Queue(asynqtask.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(time.Hour),
	)
	info, err := s.enqueuer.Enqueue(t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.log.Debug("[Scheduler] tick already enqueued", zap.String("task", name), zap.Time("tick", tick))
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("[Scheduler] task enqueued", zap.String("task", name), zap.String("task_id", info.ID))
	return nil
}

func (s *Scheduler) Jobs() []gocron.Job {
	return s.sched.Jobs()
}

func (s *Scheduler) Start() {
	s.sched.Start()
	for _, j := range s.sched.Jobs() {
		next, _ := j.NextRun()
		s.log.Info("[Scheduler] job scheduled", zap.String("task", j.Name()), zap.Time("next_run", next))
	}
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// StartScheduler starts and stops the scheduler with the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop()
		},
	})
}

var errLockHeld = errors.New("scheduler lock held by another instance")

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements gocron.Locker with SET NX.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	lockKey := rediskey.BuildSchedulerLockKey(key)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLockHeld
	}
	return &redisLock{rdb: l.rdb, key: lockKey, token: token}, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
