package middleware

import (
	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("middleware",
	fx.Provide(NewEnforcer),
)

// NewEnforcer loads the casbin model and policy files named in ACCESS_CONTROL.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	if err != nil {
		return nil, err
	}
	zap.L().Info("[Casbin] policy loaded",
		zap.String("model", cfg.AccessControl.Model),
		zap.String("policy", cfg.AccessControl.Policy),
	)
	return e, nil
}

// Authorize checks (role, route, method) against the enforcer. It must run
// after RequireIdentity.
func Authorize(e casbin.IEnforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c.Request.Context())
		if !ok {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}

		allowed, err := e.Enforce(id.Role, c.FullPath(), c.Request.Method)
		if err != nil {
			_ = c.Error(errutil.Internal("authorization failed", err))
			c.Abort()
			return
		}
		if !allowed {
			_ = c.Error(errutil.Forbidden("operation not permitted", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
