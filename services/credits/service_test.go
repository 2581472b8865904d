package credits

import (
	"context"
	"testing"

	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(ServiceParams{
		DB:     testutil.NewTestDB(t, ledger.Models()...),
		Node:   testutil.NewNode(t),
		Logger: zap.NewNop(),
	})
}

func TestSpendMoreThanBalanceLeavesItUnchanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.Grant(ctx, ledger.Request{UserID: "u1", Amount: 5, Kind: ledger.KindAdminAdjustment})
	require.NoError(t, err)

	_, err = svc.Spend(ctx, ledger.Request{UserID: "u1", Amount: 10, Kind: ledger.KindPurchase})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	bal, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Balance)
	require.Equal(t, ledger.CurrencyCredits, bal.Currency)
}

func TestCreditsRejectNegativeGrant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Grant(ctx, ledger.Request{UserID: "u1", Amount: -1, Kind: ledger.KindAdminAdjustment})
	require.ErrorIs(t, err, ledger.ErrNonPositiveAmount)
}

func TestHistoryAndVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Grant(ctx, ledger.Request{UserID: "u1", Amount: 30, Kind: ledger.KindDailyReward})
	require.NoError(t, err)
	_, err = svc.Spend(ctx, ledger.Request{UserID: "u1", Amount: 12, Kind: ledger.KindRedemption})
	require.NoError(t, err)

	rows, info, err := svc.History(ctx, "u1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.False(t, info.HasMore)
	require.Equal(t, ledger.KindRedemption, rows[0].Kind)

	v, err := svc.Verify(ctx, "u1")
	require.NoError(t, err)
	require.True(t, v.Valid, v.Problems)
	require.Equal(t, int64(18), v.Replayed)
}
