package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTaskNotFound = errutil.NotFound("task not found", nil, errutil.WithReason(errutil.ReasonNotFound))

var jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scheduled_job_runs_total",
	Help: "Scheduled job runs by task and final status.",
}, []string{"task", "status"})

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	log  *zap.Logger
	now  func() time.Time
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Logger *zap.Logger      `optional:"true"`
	Now    func() time.Time `name:"clock" optional:"true"`
}

func NewService(p Params) *Service {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{db: p.DB, node: p.Node, log: log, now: now}
}

// Register inserts the registry rows for the given tasks. Existing rows keep
// their is_active flag.
func (s *Service) Register(ctx context.Context, tasks ...Task) error {
	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = s.node.Generate().String()
		}
	}
	if len(tasks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&tasks).Error
}

// Active reports whether the task may run. Unregistered tasks are active.
func (s *Service) Active(ctx context.Context, name string) (bool, error) {
	var t Task
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return t.IsActive, nil
}

func (s *Service) SetActive(ctx context.Context, name string, active bool) error {
	res := s.db.WithContext(ctx).Model(&Task{}).Where("name = ?", name).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Run executes fn and records it as a Job. A paused task is recorded as
// skipped and fn is not called. The returned error is fn's error.
func (s *Service) Run(ctx context.Context, name string, fn func(ctx context.Context) (Result, error)) (*Job, error) {
	log := logger.FromContext(ctx, s.log).With(zap.String("task", name))

	started := s.now()
	job := &Job{
		ID:        s.node.Generate().String(),
		TaskName:  name,
		Status:    JobRunning,
		StartedAt: started,
	}

	active, err := s.Active(ctx, name)
	if err != nil {
		return nil, err
	}
	if !active {
		job.Status = JobSkipped
		job.CompletedAt = &started
		if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, err
		}
		jobRuns.WithLabelValues(name, string(JobSkipped)).Inc()
		log.Info("[Scheduler] task paused, skipping run")
		return job, nil
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}

	res, runErr := fn(ctx)

	completed := s.now()
	updates := map[string]any{
		"status":          JobSuccess,
		"items_processed": res.Processed,
		"items_succeeded": res.Succeeded,
		"items_failed":    res.Failed,
		"duration_ms":     completed.Sub(started).Milliseconds(),
		"completed_at":    completed,
	}
	if runErr != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = runErr.Error()
	}
	if len(res.Metadata) > 0 {
		if raw, err := json.Marshal(res.Metadata); err == nil {
			updates["metadata"] = datatypes.JSON(raw)
		}
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		log.Error("[Scheduler] failed to record job result", zap.String("job_id", job.ID), zap.Error(err))
	}

	if err := s.db.WithContext(ctx).Where("id = ?", job.ID).Take(job).Error; err != nil {
		return nil, err
	}

	jobRuns.WithLabelValues(name, string(job.Status)).Inc()
	log.Info("[Scheduler] job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.ItemsProcessed),
		zap.Int("succeeded", job.ItemsSucceeded),
		zap.Int("failed", job.ItemsFailed),
		zap.Int64("duration_ms", job.DurationMs),
	)
	return job, runErr
}

// ListJobs returns the latest runs, newest first. An empty name lists every task.
func (s *Service) ListJobs(ctx context.Context, name string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit)
	if name != "" {
		q = q.Where("task_name = ?", name)
	}
	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
