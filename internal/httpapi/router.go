// Package httpapi implements the Control-Plane HTTP API: a thin gin
// router that binds every task/run RPC to JSON endpoints, translates
// errors via the error-kind mapper, and exposes the Broadcast Hub and
// Collector Gateway as upgrade endpoints.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/desktopai/runcontrol/internal/logging"
)

// RouterDeps are the services the router binds handlers to. Each is the
// narrowest interface the handler actually calls, so tests can supply
// fakes without standing up the full composition root.
type RouterDeps struct {
	Tasks      TaskService
	Runs       RunService
	Hub        BroadcastHub
	Collector  http.Handler
	Logger     logging.Logger
}

// RouterConfig tunes cross-cutting router behavior.
type RouterConfig struct {
	AllowedOrigins []string
	Environment    string
}

// NewRouter builds the gin engine for the Control-Plane HTTP API.
func NewRouter(deps RouterDeps, cfg RouterConfig) http.Handler {
	logger := logging.OrNop(deps.Logger).With("httpapi")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware(logger))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	taskHandler := NewTaskHandler(deps.Tasks)
	runHandler := NewRunHandler(deps.Runs)

	engine.GET("/healthz", HandleHealthz)

	tasks := engine.Group("/tasks")
	{
		tasks.POST("", taskHandler.Create)
		tasks.GET("", taskHandler.List)
		tasks.GET("/:id", taskHandler.Get)
		tasks.POST("/:id/plan", taskHandler.SetPlan)
		tasks.POST("/:id/run", taskHandler.Run)
		tasks.POST("/:id/approve", taskHandler.Approve)
		tasks.POST("/:id/pause", taskHandler.Pause)
		tasks.POST("/:id/resume", taskHandler.Resume)
		tasks.POST("/:id/cancel", taskHandler.Cancel)
	}

	runs := engine.Group("/runs")
	{
		runs.POST("", runHandler.Start)
		runs.GET("", runHandler.List)
		runs.GET("/:id", runHandler.Get)
		runs.POST("/:id/approve", runHandler.Approve)
		runs.POST("/:id/cancel", runHandler.Cancel)
	}

	if deps.Hub != nil {
		engine.GET("/ws/updates", NewUpdatesHandler(deps.Hub, logger).ServeWS)
	}
	if deps.Collector != nil {
		engine.Any("/ws/collector", gin.WrapH(deps.Collector))
	}

	return engine
}

func corsConfig(allowedOrigins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = allowedOrigins
	}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	c.MaxAge = 12 * time.Hour
	return c
}

// LoggingMiddleware logs every request's method, path, and remote
// address, matching the teacher's component-scoped request log line.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Info("%s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
		c.Next()
	}
}

// HandleHealthz is the liveness probe.
func HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
