package badge

import (
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/xp"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("badge.service",
	fx.Provide(
		func(s *xp.Service) XPGranter { return s },
		func(s *credits.Service) CreditsGranter { return s },
		NewService,
	),
)

// Worker consumes badge:check.
var Worker = fx.Module("badge.worker",
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.Handle(taskname.BadgeCheck, s)
	}),
)
