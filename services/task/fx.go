package task

import (
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/xp"

	"go.uber.org/fx"
)

// Module provides the execution log.
var Module = fx.Module("task.service",
	fx.Provide(NewService),
)

// Worker wires the scheduled task handlers and the scheduler into the worker
// binary. It expects Module, the asynq server and the domain services.
var Worker = fx.Module("task.worker",
	fx.Provide(
		func(s *xp.Service) UserLister { return s },
		func(s *badge.Service) BadgeScanner { return s },
		func(s *referral.Service) ReferralJobs { return s },
		NewHandlers,
		NewScheduler,
	),
	fx.Invoke(RegisterHandlers, StartScheduler),
)
