package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) *Health
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	this := h.Check(c.Request.Context())
	code := http.StatusOK
	if this.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, this)
}

// Check pings every configured dependency.
func (h *health) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	this := &Health{
		Status:  StatusHealthy,
		Message: "OK",
	}

	deps := make([]Dependency, 0, 2)
	if h.db != nil {
		dep := Dependency{
			Name:    h.db.Name(),
			Status:  StatusHealthy,
			Message: "OK",
		}

		sql, err := h.db.DB()
		if err == nil {
			err = sql.PingContext(ctx)
		}
		if err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}

		deps = append(deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{
			Name:    "redis",
			Status:  StatusHealthy,
			Message: "OK",
		}

		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}

		deps = append(deps, dep)
	}

	for _, d := range deps {
		if d.Status != StatusHealthy {
			this.Status = StatusUnhealthy
			this.Message = "dependency unavailable"
		}
	}
	this.Deps = deps
	return this
}

// RegisterGRPC serves grpc.health.v1 on srv. The status follows Check and is
// refreshed every interval until ctx is done.
func RegisterGRPC(ctx context.Context, srv *grpc.Server, h HealthService, interval time.Duration) *grpchealth.Server {
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if h.Check(ctx).Status != StatusHealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
	}
	update()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-ticker.C:
				update()
			}
		}
	}()

	zap.L().Info("[Health] gRPC health service registered")
	return hs
}
