package xp

import (
	"context"
	"testing"

	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/level"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db      *gorm.DB
	xp      *Service
	credits *credits.Service
}

func newFixture(t *testing.T, notifier notification.Notifier) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, ledger.Models()...)
	node := testutil.NewNode(t)
	cs := credits.NewService(credits.ServiceParams{DB: db, Node: node, Logger: zap.NewNop()})
	xs := NewService(ServiceParams{DB: db, Node: node, Credits: cs, Notifier: notifier, Logger: zap.NewNop()})

	ctx := context.Background()
	for _, open := range []func(context.Context, string) (*ledger.Balance, error){xs.Open, cs.Open} {
		_, err := open(ctx, "u1")
		require.NoError(t, err)
	}
	return &fixture{db: db, xp: xs, credits: cs}
}

func TestOpenStartsAtBronze(t *testing.T) {
	f := newFixture(t, nil)

	bal, err := f.xp.Balance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, string(level.Bronze), bal.Level)
}

func TestLevelUpGrantsCreditsBonus(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notification.NewMockNotifier(ctrl)
	f := newFixture(t, notifier)
	ctx := context.Background()

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)
	_, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: 490, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev notification.Event) {
		require.Equal(t, notification.TypeLevelUp, ev.Type)
		require.Equal(t, "u1", ev.UserID)
	})
	res, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: 20, Kind: ledger.KindPredictionReward})
	require.NoError(t, err)
	require.Equal(t, int64(510), res.NewBalance)
	require.NotNil(t, res.LevelUp)
	require.Equal(t, string(level.Bronze), res.LevelUp.From)
	require.Equal(t, string(level.Silver), res.LevelUp.To)
	require.Equal(t, int64(25), res.LevelUp.BonusCredits)

	bal, err := f.credits.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(25), bal.Balance)

	xb, err := f.xp.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, string(level.Silver), xb.Level)
	require.Equal(t, 1, xb.AchievementsCount)
	require.InDelta(t, 0.67, xb.LevelProgress, 0.001)
}

func TestLevelDownDoesNotClawBack(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	_, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: 600, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)

	res, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: -200, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)
	require.Nil(t, res.LevelUp)
	require.Equal(t, level.Bronze, res.Level.Tier.Name)

	bal, err := f.credits.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(25), bal.Balance)

	// Climbing back into silver pays the bonus again.
	res, err = f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: 200, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)
	require.NotNil(t, res.LevelUp)
}

func TestMultiTierJumpPaysFinalTierBonus(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	res, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: 5000, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)
	require.Equal(t, string(level.Platinum), res.LevelUp.To)
	require.Equal(t, int64(100), res.LevelUp.BonusCredits)

	p, err := f.xp.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, level.Platinum, p.Level.Tier.Name)
	require.Equal(t, 1, p.AchievementsCount)
}

func TestGrantTxBonusRollsBackTogether(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.xp.GrantTx(ctx, tx, ledger.Request{UserID: "u1", Amount: 500, Kind: ledger.KindAdminAdjustment})
		require.NoError(t, err)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	xb, err := f.xp.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), xb.Balance)

	cb, err := f.credits.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), cb.Balance)
}

func TestNegativeGrantWithoutLevelChange(t *testing.T) {
	f := newFixture(t, notification.Nop{})
	ctx := context.Background()

	res, err := f.xp.Grant(ctx, ledger.Request{UserID: "u1", Amount: -10, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)
	require.Equal(t, int64(-10), res.NewBalance)
	require.Nil(t, res.LevelUp)
	require.Equal(t, level.Bronze, res.Level.Tier.Name)
}
