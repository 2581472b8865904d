package xp

import (
	"goalplay-engagement/services/credits"

	"go.uber.org/fx"
)

var Module = fx.Module("xp.service",
	fx.Provide(
		func(c *credits.Service) CreditsGranter { return c },
		NewService,
	),
)
