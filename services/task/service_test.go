package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"goalplay-engagement/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC))
	db := testutil.NewTestDB(t, Models()...)
	return NewService(Params{
		DB:     db,
		Node:   testutil.NewNode(t),
		Logger: zap.NewNop(),
		Now:    clock.Now,
	}), clock
}

func TestRunRecordsSuccess(t *testing.T) {
	svc, clock := newTestService(t)

	job, err := svc.Run(context.Background(), "badge:catalog:scan", func(context.Context) (Result, error) {
		clock.Advance(1500 * time.Millisecond)
		return Result{Processed: 10, Succeeded: 9, Failed: 1, Metadata: map[string]any{"unlocked": 3}}, nil
	})
	require.NoError(t, err)
	require.Equal(t, JobSuccess, job.Status)
	require.Equal(t, 10, job.ItemsProcessed)
	require.Equal(t, 9, job.ItemsSucceeded)
	require.Equal(t, 1, job.ItemsFailed)
	require.Equal(t, int64(1500), job.DurationMs)
	require.NotNil(t, job.CompletedAt)
	require.JSONEq(t, `{"unlocked":3}`, string(job.Metadata))
}

func TestRunRecordsFailure(t *testing.T) {
	svc, _ := newTestService(t)
	boom := errors.New("store unavailable")

	job, err := svc.Run(context.Background(), "referral:tier:check", func(context.Context) (Result, error) {
		return Result{Processed: 2}, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, JobFailed, job.Status)
	require.Equal(t, "store unavailable", job.ErrorMsg)
	require.Equal(t, 2, job.ItemsProcessed)
}

func TestRunSkipsPausedTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, Task{Name: "referral:expiry:sweep", Schedule: "0 1 * * *", IsActive: true}))
	require.NoError(t, svc.SetActive(ctx, "referral:expiry:sweep", false))

	called := false
	job, err := svc.Run(ctx, "referral:expiry:sweep", func(context.Context) (Result, error) {
		called = true
		return Result{}, nil
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, JobSkipped, job.Status)

	// registering again keeps the paused flag
	require.NoError(t, svc.Register(ctx, Task{Name: "referral:expiry:sweep", IsActive: true}))
	active, err := svc.Active(ctx, "referral:expiry:sweep")
	require.NoError(t, err)
	require.False(t, active)

	require.ErrorIs(t, svc.SetActive(ctx, "unknown", false), ErrTaskNotFound)
}

func TestListJobs(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	noop := func(context.Context) (Result, error) { return Result{}, nil }

	for i := 0; i < 3; i++ {
		_, err := svc.Run(ctx, "badge:catalog:scan", noop)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}
	_, err := svc.Run(ctx, "referral:tier:check", noop)
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx, "badge:catalog:scan", 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.True(t, jobs[0].StartedAt.After(jobs[1].StartedAt))

	all, err := svc.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
}
