package daily

import (
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/xp"

	"go.uber.org/fx"
)

var Module = fx.Module("daily.service",
	fx.Provide(
		func(s *xp.Service) XPGranter { return s },
		func(s *credits.Service) CreditsGranter { return s },
		func(s *badge.Service) BadgeChecker { return s },
		NewService,
	),
)
