package notification

import (
	"goalplay-engagement/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewAsynqNotifier),
)

// Worker consumes notification:push with the log sender.
var Worker = fx.Module("notification.worker",
	fx.Provide(
		func(log *zap.Logger) Sender { return LogSender{Log: log} },
		NewPushHandler,
	),
	fx.Invoke(func(mux *asynq.ServeMux, h *PushHandler) {
		mux.Handle(taskname.NotificationPush, h)
	}),
)
