package bootstrap

import (
	"context"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/services/badge"

	"go.uber.org/fx"
)

var Module = fx.Module("bootstrap",
	fx.Provide(
		func(s *badge.Service) CatalogSeeder { return s },
		NewService,
	),
	fx.Invoke(runBootstrap),
)

// runBootstrap migrates on start when DATABASE.AUTO_MIGRATE is set.
func runBootstrap(lc fx.Lifecycle, cfg *config.Config, b *Service) {
	if !cfg.Database.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return b.Run(ctx)
		},
	})
}
