package referral

import (
	"context"
	"testing"
	"time"

	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/testutil"
	"goalplay-engagement/services/xp"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixedCodes struct {
	codes []string
}

func (f *fixedCodes) NextReferralCode(context.Context) (string, error) {
	c := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return c, nil
}

type recordingChecker struct {
	counts []int64
}

func (r *recordingChecker) CheckAndUnlock(_ context.Context, _ string, ct badge.ConditionType, m badge.Measurement) ([]*badge.UnlockResult, error) {
	if ct == badge.ConditionReferrals {
		r.counts = append(r.counts, m.Value)
	}
	return nil, nil
}

type fixture struct {
	svc     *Service
	clock   *testutil.Clock
	xp      *xp.Service
	credits *credits.Service
	checker *recordingChecker
	codes   *fixedCodes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	models := append(ledger.Models(), Models()...)
	db := testutil.NewTestDB(t, models...)
	node := testutil.NewNode(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	cs := credits.NewService(credits.ServiceParams{DB: db, Node: node, Logger: zap.NewNop()})
	xs := xp.NewService(xp.ServiceParams{DB: db, Node: node, Credits: cs, Logger: zap.NewNop()})
	checker := &recordingChecker{}
	codes := &fixedCodes{codes: []string{"GOAL-A3B7K"}}
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		XP:       xs,
		Credits:  cs,
		Badges:   checker,
		Notifier: notification.Nop{},
		Codes:    codes,
		Logger:   zap.NewNop(),
		Now:      clock.Now,
	})

	f := &fixture{svc: svc, clock: clock, xp: xs, credits: cs, checker: checker, codes: codes}
	for _, u := range []string{"alice", "bob", "carol"} {
		f.open(t, u)
	}
	return f
}

func (f *fixture) open(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.xp.Open(ctx, userID)
	require.NoError(t, err)
	_, err = f.credits.Open(ctx, userID)
	require.NoError(t, err)
}

func (f *fixture) balances(t *testing.T, userID string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	xb, err := f.xp.Balance(ctx, userID)
	require.NoError(t, err)
	cb, err := f.credits.Balance(ctx, userID)
	require.NoError(t, err)
	return xb.Balance, cb.Balance
}

func TestReferralSignupAndFirstLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "GOAL-A3B7K", code.Code)

	ref, err := f.svc.ApplyCode(ctx, "bob", " goal-a3b7k ")
	require.NoError(t, err)
	require.Equal(t, StatusPending, ref.Status)
	require.Equal(t, TierSignup, ref.Tier)
	require.Equal(t, "alice", ref.ReferrerUserID)
	require.Equal(t, f.clock.Now().Add(30*24*time.Hour), ref.ExpiresAt)

	axp, acr := f.balances(t, "alice")
	require.Equal(t, int64(50), axp)
	require.Equal(t, int64(10), acr)

	ok, err := f.svc.OnFirstLogin(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	_, acr = f.balances(t, "alice")
	require.Equal(t, int64(60), acr)
	_, bcr := f.balances(t, "bob")
	require.Equal(t, int64(10), bcr)
	require.Equal(t, []int64{1}, f.checker.counts)

	ok, err = f.svc.OnFirstLogin(ctx, "bob")
	require.NoError(t, err)
	require.False(t, ok)
	_, acr = f.balances(t, "alice")
	require.Equal(t, int64(60), acr)
}

func TestApplyCodeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.ApplyCode(ctx, "alice", "GOAL-A3B7K")
	require.ErrorIs(t, err, ErrSelfReferral)
	require.Equal(t, errutil.ReasonSelfReferenceNotAllowed, errutil.ReasonOf(err))

	_, err = f.svc.ApplyCode(ctx, "bob", "GOAL-ZZZZZ")
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.svc.ApplyCode(ctx, "bob", "")
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.svc.ApplyCode(ctx, "bob", "GOAL-A3B7K")
	require.NoError(t, err)
	_, err = f.svc.ApplyCode(ctx, "bob", "GOAL-A3B7K")
	require.ErrorIs(t, err, ErrDuplicateReferral)
	require.Equal(t, errutil.ReasonDuplicateReferral, errutil.ReasonOf(err))

	axp, acr := f.balances(t, "alice")
	require.Equal(t, int64(50), axp)
	require.Equal(t, int64(10), acr)
}

func TestTiersAdvanceInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.ApplyCode(ctx, "bob", "GOAL-A3B7K")
	require.NoError(t, err)

	ok, err := f.svc.OnSubscription(ctx, "bob")
	require.NoError(t, err)
	require.False(t, ok)
	_, acr := f.balances(t, "alice")
	require.Equal(t, int64(10), acr)

	ok, err = f.svc.OnFirstLogin(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.OnSubscription(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	_, acr = f.balances(t, "alice")
	require.Equal(t, int64(10+50+200), acr)

	ok, err = f.svc.OnSubscription(ctx, "bob")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.OnFirstLogin(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)

	refs, _, err := f.svc.List(ctx, "alice", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, StatusRewarded, refs[0].Status)
	require.Equal(t, TierSubscription, refs[0].Tier)
	require.NotNil(t, refs[0].ReferredSubscribedAt)
	require.NotNil(t, refs[0].RewardClaimedAt)
	require.Equal(t, int64(260), refs[0].ReferrerRewardCredits)
	require.Equal(t, int64(10), refs[0].ReferredRewardCredits)

	st, err := f.svc.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "GOAL-A3B7K", st.Code)
	require.Equal(t, int64(1), st.Total)
	require.Equal(t, int64(1), st.Successful)
	require.Equal(t, int64(50), st.XPEarned)
	require.Equal(t, int64(260), st.CreditsEarned)
}

func TestExpiredReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.ApplyCode(ctx, "bob", "GOAL-A3B7K")
	require.NoError(t, err)
	_, err = f.svc.ApplyCode(ctx, "carol", "GOAL-A3B7K")
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)

	ok, err := f.svc.OnFirstLogin(ctx, "bob")
	require.ErrorIs(t, err, ErrExpired)
	require.False(t, ok)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	st, err := f.svc.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), st.ByStatus[StatusExpired])

	ok, err = f.svc.OnFirstLogin(ctx, "carol")
	require.NoError(t, err)
	require.False(t, ok)
}

type fakeActivity struct {
	loggedIn   map[string]bool
	subscribed map[string]bool
}

func (f fakeActivity) HasLoggedInSince(_ context.Context, userID string, _ time.Time) (bool, error) {
	return f.loggedIn[userID], nil
}

func (f fakeActivity) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	return f.subscribed[userID], nil
}

func TestCheckTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	for _, u := range []string{"bob", "carol"} {
		_, err = f.svc.ApplyCode(ctx, u, "GOAL-A3B7K")
		require.NoError(t, err)
	}

	src := fakeActivity{
		loggedIn:   map[string]bool{"bob": true},
		subscribed: map[string]bool{"bob": true},
	}
	report, err := f.svc.CheckTiers(ctx, src, 0)
	require.NoError(t, err)
	require.Equal(t, 3, report.Checked)
	require.Equal(t, 2, report.Advanced)
	require.Zero(t, report.Failed)

	report, err = f.svc.CheckTiers(ctx, src, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Zero(t, report.Advanced)
}

func TestEnsureCodeRetriesOnCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.codes.codes = []string{"GOAL-AAAAA", "GOAL-AAAAA", "GOAL-BBBBB"}

	a, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "GOAL-AAAAA", a.Code)

	b, err := f.svc.EnsureCode(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "GOAL-BBBBB", b.Code)

	again, err := f.svc.EnsureCode(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, a.ID, again.ID)

	owner, err := f.svc.ResolveCode(ctx, "goal-bbbbb")
	require.NoError(t, err)
	require.Equal(t, "bob", owner.UserID)
}
