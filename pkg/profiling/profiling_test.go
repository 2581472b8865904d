package profiling

import (
	"testing"

	"goalplay-engagement/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestStartProfilingDisabledWithoutAddr(t *testing.T) {
	app := fxtest.New(t,
		fx.Supply(config.Default(), zap.NewNop()),
		Module,
	)
	app.RequireStart()
	app.RequireStop()
}
