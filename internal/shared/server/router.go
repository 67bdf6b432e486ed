package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/services/health"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/config"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/metrics"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/middleware"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/respond"
	"github.com/yodusanwo/ai-trip-planner/internal/trips"
)

const apiPrefix = "/api/v1"

// RouterDeps holds the handlers mounted by NewRouter.
type RouterDeps struct {
	Config       config.Config
	TripsHandler *trips.Handler
	UsageHandler *quota.Handler
	Health       *health.Service
	Limiter      *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.ClientIdentity(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateLimitGroup,
			Limiter:  deps.Limiter,
			Rules: map[string]middleware.RateLimitRule{
				middleware.GroupSubmit:  {Rate: cfg.Jobs.SubmitRatePerMinute / 60, Burst: cfg.Jobs.SubmitBurst},
				middleware.GroupPolling: {Rate: cfg.Jobs.PollRatePerSecond, Burst: cfg.Jobs.PollBurst},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group(apiPrefix)
	if deps.Health != nil {
		deps.Health.RegisterRoutes(api)
	} else {
		api.GET("/health", func(c *gin.Context) {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
		})
	}
	if deps.TripsHandler != nil {
		deps.TripsHandler.RegisterRoutes(api)
		deps.TripsHandler.RegisterPollingRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	return r
}

// rateLimitGroup puts trip submission and trip reads in separate buckets.
// Streams are long-lived, so only their opening request is counted.
func rateLimitGroup(c *gin.Context) string {
	path := c.FullPath()
	if !strings.HasPrefix(path, apiPrefix+"/trips") {
		return ""
	}
	if c.Request.Method == http.MethodPost {
		return middleware.GroupSubmit
	}
	return middleware.GroupPolling
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
