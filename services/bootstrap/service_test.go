package bootstrap

import (
	"context"
	"testing"

	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/testutil"
	"goalplay-engagement/services/xp"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunMigratesAndSeedsOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	node := testutil.NewNode(t)
	cs := credits.NewService(credits.ServiceParams{DB: db, Node: node, Logger: zap.NewNop()})
	xs := xp.NewService(xp.ServiceParams{DB: db, Node: node, Credits: cs, Logger: zap.NewNop()})
	bs := badge.NewService(badge.ServiceParams{DB: db, Node: node, XP: xs, Credits: cs, Logger: zap.NewNop()})
	svc := NewService(ServiceParams{DB: db, Badges: bs, Logger: zap.NewNop()})
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx))
	for _, m := range Models() {
		require.True(t, db.Migrator().HasTable(m))
	}

	catalog, err := bs.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, len(badge.DefaultCatalog()))

	n, err := svc.SeedCatalog(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
