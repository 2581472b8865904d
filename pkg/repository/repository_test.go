package repository

import (
	"context"
	"testing"
	"time"

	"goalplay-engagement/pkg/db/option"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID        string `gorm:"primaryKey"`
	Owner     string
	Score     int64
	CreatedAt time.Time
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[widget](newDB(t))

	now := time.Now().UTC()
	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: "a", Owner: "u1", Score: 10, CreatedAt: now},
		{ID: "b", Owner: "u1", Score: 30, CreatedAt: now.Add(time.Second)},
		{ID: "c", Owner: "u2", Score: 20, CreatedAt: now.Add(2 * time.Second)},
	}))

	missing, err := repo.FindOne(ctx, &widget{ID: "zzz"})
	require.NoError(t, err)
	require.Nil(t, missing)

	latest, err := repo.FindOne(ctx, &widget{Owner: "u1"}, option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
	require.NoError(t, err)
	require.Equal(t, "b", latest.ID)

	high, err := repo.Find(ctx, nil, option.ApplyOperator(option.Condition{Field: "score", Operator: option.GT, Value: 15}))
	require.NoError(t, err)
	require.Len(t, high, 2)

	in, err := repo.Find(ctx, nil, option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: []any{"a", "c"}}))
	require.NoError(t, err)
	require.Len(t, in, 2)

	count, err := repo.Count(ctx, &widget{Owner: "u1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	require.NoError(t, repo.Update(ctx, "a", map[string]any{"score": 99}))
	a, err := repo.FindOne(ctx, &widget{ID: "a"})
	require.NoError(t, err)
	require.Equal(t, int64(99), a.Score)

	require.ErrorIs(t, repo.Update(ctx, "nope", map[string]any{"score": 1}), gorm.ErrRecordNotFound)
}

func TestStoreWithTrxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	repo := ProvideStore[widget](db)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, repo.WithTrx(tx).Create(ctx, &widget{ID: "x", Owner: "u", CreatedAt: time.Now()}))
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	got, err := repo.FindOne(ctx, &widget{ID: "x"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestWithSortByRejectsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[widget](newDB(t))
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &widget{ID: "old", Owner: "u", Score: 100, CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, &widget{ID: "new", Owner: "u", Score: 1, CreatedAt: now.Add(time.Minute)}))

	got, err := repo.FindOne(ctx, nil, option.WithSortBy(option.QuerySortBy{
		SortBy:  "score; DROP TABLE widgets",
		OrderBy: "desc",
		Allow:   map[string]bool{"score": true},
	}))
	require.NoError(t, err)
	require.Equal(t, "new", got.ID)
}
