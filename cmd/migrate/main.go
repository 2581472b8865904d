// Command migrate creates the engagement schema and seeds the default badge
// catalog. It is safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/bootstrap"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/xp"
)

func main() {
	seed := flag.Bool("seed", true, "seed the default badge catalog")
	flag.Parse()

	cfg := config.LoadConfig()
	zlog := logger.New(logger.ConfigParams{Cfg: cfg})
	defer func() { _ = zlog.Sync() }()

	node, err := snowflake.NewNode(0)
	if err != nil {
		log.Fatal(err)
	}

	gdb := db.New(cfg, db.Dialect(cfg))
	cs := credits.NewService(credits.ServiceParams{DB: gdb, Node: node, Logger: zlog})
	xs := xp.NewService(xp.ServiceParams{DB: gdb, Node: node, Credits: cs, Logger: zlog})
	bs := badge.NewService(badge.ServiceParams{DB: gdb, Node: node, XP: xs, Credits: cs, Config: cfg, Logger: zlog})
	boot := bootstrap.NewService(bootstrap.ServiceParams{DB: gdb, Badges: bs, Logger: zlog})

	ctx := context.Background()
	if err := boot.Migrate(ctx); err != nil {
		zlog.Fatal("[Migrate] schema migration failed", zap.Error(err))
	}
	if !*seed {
		return
	}
	if _, err := boot.SeedCatalog(ctx); err != nil {
		zlog.Fatal("[Migrate] badge seed failed", zap.Error(err))
	}
}
