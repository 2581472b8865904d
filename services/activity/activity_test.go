package activity

import (
	"context"
	"testing"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/testutil"

	"github.com/stretchr/testify/require"
)

type stub struct {
	referrals int64
	streak    int
	xp        *ledger.Balance
	credits   *ledger.Balance
}

func (s stub) CountSuccessful(context.Context, string) (int64, error) { return s.referrals, nil }
func (s stub) CurrentStreak(context.Context, string) (int, error)     { return s.streak, nil }

type balanceStub struct{ bal *ledger.Balance }

func (b balanceStub) Balance(context.Context, string) (*ledger.Balance, error) { return b.bal, nil }

func TestMeasure(t *testing.T) {
	s := stub{referrals: 3, streak: 5}
	m := &Measurements{
		referrals: s,
		streaks:   s,
		xp:        balanceStub{&ledger.Balance{Balance: 2500}},
		credits:   balanceStub{&ledger.Balance{Balance: 10, LifetimeEarned: 1200}},
	}
	ctx := context.Background()

	got, err := m.Measure(ctx, "u1", badge.ConditionReferrals)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Value)

	got, err = m.Measure(ctx, "u1", badge.ConditionLoginStreak)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Value)

	got, err = m.Measure(ctx, "u1", badge.ConditionXPLevel)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Value)

	got, err = m.Measure(ctx, "u1", badge.ConditionCreditsEarned)
	require.NoError(t, err)
	require.Equal(t, int64(1200), got.Value)

	for _, ct := range []badge.ConditionType{badge.ConditionPredictions, badge.ConditionComments} {
		_, err = m.Measure(ctx, "u1", ct)
		require.ErrorIs(t, err, badge.ErrUnsupportedMeasurement)
	}
}

func TestLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE users (id TEXT PRIMARY KEY, last_login_at DATETIME)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE subscriptions (id INTEGER PRIMARY KEY, user_id TEXT, status TEXT)`).Error)

	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(`INSERT INTO users (id, last_login_at) VALUES (?, ?), (?, ?)`,
		"bob", since.Add(time.Hour), "carol", since.Add(-time.Hour)).Error)
	require.NoError(t, db.Exec(`INSERT INTO subscriptions (user_id, status) VALUES (?, ?), (?, ?)`,
		"bob", "active", "carol", "cancelled").Error)

	l := NewLifecycle(LifecycleParams{DB: db, Config: config.Default()})
	ctx := context.Background()

	ok, err := l.HasLoggedInSince(ctx, "bob", since)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.HasLoggedInSince(ctx, "carol", since)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = l.HasActiveSubscription(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.HasActiveSubscription(ctx, "carol")
	require.NoError(t, err)
	require.False(t, ok)
}
