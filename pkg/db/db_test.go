package db

import (
	"errors"
	"fmt"
	"testing"

	"goalplay-engagement/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestDialectSelection(t *testing.T) {
	cfg := config.Default()

	cfg.Database.Type = "sqlite"
	_, ok := Dialect(cfg).(*sqlite.Dialector)
	require.True(t, ok)

	cfg.Database.Type = "mysql"
	_, ok = Dialect(cfg).(*mysql.Dialector)
	require.True(t, ok)

	cfg.Database.Type = ""
	cfg.Database.DBNAME = "engagement"
	d, ok := Dialect(cfg).(*postgres.Dialector)
	require.True(t, ok)
	require.Equal(t, "engagement", getDBNameFromDialector(d))
}

func TestExtractDBNameFromDSN(t *testing.T) {
	require.Equal(t, "app", extractDBNameFromDSN("host=localhost dbname=app sslmode=disable"))
	require.Equal(t, "app", extractDBNameFromDSN("root:pw@tcp(localhost:3306)/app?parseTime=True"))
	require.Equal(t, "unknown", extractDBNameFromDSN(""))
}

func TestIsDuplicateKey(t *testing.T) {
	require.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	require.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	require.True(t, IsDuplicateKey(errors.New("UNIQUE constraint failed: user_badges.user_id")))
	require.True(t, IsDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx"`)))
	require.False(t, IsDuplicateKey(errors.New("connection refused")))
	require.False(t, IsDuplicateKey(nil))
}
