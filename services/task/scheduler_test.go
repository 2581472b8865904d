package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"goalplay-engagement/pkg/config"
	asynqtask "goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, enq asynqtask.Enqueuer) (*Scheduler, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 10, 0, 42, 0, time.UTC))
	s, err := NewScheduler(SchedulerParams{
		Config:   config.Default(),
		Enqueuer: enq,
		Service:  svc,
		Logger:   zap.NewNop(),
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return s, svc
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s, svc := newTestScheduler(t, &asynqtask.FakeEnqueuer{})

	var names []string
	for _, j := range s.Jobs() {
		names = append(names, j.Name())
	}
	require.ElementsMatch(t, taskname.Scheduled(), names)

	for _, name := range taskname.Scheduled() {
		active, err := svc.Active(context.Background(), name)
		require.NoError(t, err)
		require.True(t, active)
	}
}

func TestFireEnqueuesTask(t *testing.T) {
	enq := &asynqtask.FakeEnqueuer{}
	s, _ := newTestScheduler(t, enq)

	require.NoError(t, s.Fire(context.Background(), taskname.BadgeCatalogScan))
	require.Len(t, enq.Tasks, 1)
	require.Equal(t, taskname.BadgeCatalogScan, enq.Tasks[0].Type())
}

func TestFireIgnoresDuplicateTick(t *testing.T) {
	enq := &asynqtask.FakeEnqueuer{Err: fmt.Errorf("failed to enqueue task: %w", asynq.ErrTaskIDConflict)}
	s, _ := newTestScheduler(t, enq)

	require.NoError(t, s.Fire(context.Background(), taskname.ReferralTierCheck))
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	svc, _ := newTestService(t)
	cfg := config.Default()
	cfg.Engagement.Schedule.BadgeScan = "every hour"

	_, err := NewScheduler(SchedulerParams{Config: cfg, Enqueuer: &asynqtask.FakeEnqueuer{}, Service: svc})
	require.Error(t, err)
}
