package badge

import (
	"context"
	"testing"

	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/notification"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestCheckValidates(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	for _, req := range []CheckRequest{
		{ConditionType: ConditionComments, Value: 1},
		{UserID: "u1", ConditionType: ConditionManual},
		{UserID: "u1", ConditionType: "telepathy"},
		{UserID: "u1", ConditionType: ConditionComments, Value: -1},
		{UserID: "u1", ConditionType: ConditionPredictions, CorrectCount: 3, TotalCount: 2},
	} {
		_, err := f.svc.Check(ctx, req)
		require.Equal(t, errutil.ReasonInvalidArgument, errutil.ReasonOf(err), req)
	}
}

func TestCheckTaskUnlocksPredictionBadges(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	f.open(t, "u1")
	ctx := context.Background()

	tk := NewCheckTask(CheckRequest{UserID: "u1", ConditionType: ConditionPredictions, CorrectCount: 14, TotalCount: 20})
	require.Equal(t, taskname.BadgeCheck, tk.Type())
	require.NoError(t, f.svc.ProcessTask(ctx, tk))

	held, err := f.svc.ListUserBadges(ctx, "u1")
	require.NoError(t, err)
	var slugs []string
	for _, ub := range held {
		slugs = append(slugs, ub.Badge.Slug)
	}
	require.ElementsMatch(t, []string{"lucky_guess", "sharp_shooter"}, slugs)
}

func TestCheckTaskSkipsRetryOnBadInput(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	err := f.svc.ProcessTask(ctx, asynq.NewTask(taskname.BadgeCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.svc.ProcessTask(ctx, NewCheckTask(CheckRequest{UserID: "u1", ConditionType: ConditionManual}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
