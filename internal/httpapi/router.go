// Package httpapi exposes the engagement services over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/health"
	"goalplay-engagement/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
	),
)

type RouterParams struct {
	fx.In
	Config   *config.Config
	Health   health.HealthService
	Handler  *Handler
	Enforcer *casbin.Enforcer
}

// NewRouter builds the gin engine served by pkg/server.
func NewRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(p.Config.AppName))
	r.Use(corsMiddleware(p.Config))
	r.Use(middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := p.Handler
	v1 := r.Group("/v1", middleware.RequireIdentity())
	{
		v1.GET("/badges", h.ListCatalog)
	}

	me := v1.Group("/me")
	{
		me.GET("/profile", h.GetProfile)
		me.GET("/transactions/:currency", h.ListTransactions)
		me.POST("/credits/spend", h.SpendCredits)

		me.GET("/daily-reward", h.GetDailyStatus)
		me.POST("/daily-reward/claim", h.ClaimDailyReward)
		me.GET("/daily-reward/history", h.ListDailyClaims)

		me.GET("/badges", h.ListUserBadges)
		me.POST("/badges/:badgeID/claim", h.ClaimBadge)
		me.PUT("/badges/:badgeID/display", h.DisplayBadge)

		me.GET("/referral", h.GetReferral)
		me.GET("/referral/referrals", h.ListReferrals)
		me.POST("/referral/apply", h.ApplyReferralCode)
	}

	admin := v1.Group("/admin", middleware.Authorize(p.Enforcer))
	{
		admin.POST("/users/:userID/provision", h.ProvisionUser)
		admin.POST("/users/:userID/xp", h.AdjustXP)
		admin.POST("/users/:userID/credits", h.AdjustCredits)
		admin.GET("/users/:userID/verify/:currency", h.VerifyLedger)
		admin.POST("/users/:userID/badges/:slug", h.ManualUnlock)
		admin.POST("/users/:userID/badge-checks", h.CheckBadges)

		admin.GET("/badges", h.ListAllBadges)
		admin.POST("/badges", h.CreateBadge)
		admin.PATCH("/badges/:badgeID", h.UpdateBadge)

		admin.POST("/referrals/login/:userID", h.ReferralFirstLogin)
		admin.POST("/referrals/subscription/:userID", h.ReferralSubscription)

		admin.GET("/jobs", h.ListJobs)
		admin.PUT("/tasks/:name/active", h.SetTaskActive)
	}

	return r
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderUserID, middleware.HeaderUserRole},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.Server.CorsOrigins) > 0 {
		c.AllowOrigins = cfg.Server.CorsOrigins
	} else {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	}
	return cors.New(c)
}
