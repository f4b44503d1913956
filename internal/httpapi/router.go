package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/banyan/banyan/internal/auth"
	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/notifier"
)

// Deps bundles the components NewRouter wires into gin routes — the same
// "router assembles handlers from injected deps" shape as
// cklxx-elephant.ai's RouterDeps.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Identities  *auth.IdentityStore
	Sessions    *auth.SessionManager
	Notifier    *notifier.Notifier
	Metrics     *metrics.Metrics
	Log         *logx.Logger
}

// NewRouter builds Banyan's gin.Engine: every /tasks, /registered_workers,
// and /execution_info route from spec.md §6, Basic-auth middleware applied
// uniformly, and /metrics unauthenticated for the scraper.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Log))

	r.GET("/metrics", metricsHandler(d.Metrics))

	tasks := newTaskHandlers(d.Coordinator)
	execInfo := newExecutionInfoHandlers(d.Coordinator)
	workers := newWorkerHandlers(d.Coordinator, d.Notifier)
	sessions := newSessionHandlers(d.Sessions)

	api := r.Group("/")
	api.Use(authMiddleware(d.Identities))
	{
		api.GET("/tasks", tasks.List)
		api.GET("/tasks/:id", tasks.Get)
		api.POST("/tasks", requireRole(task.RoleProvider), tasks.Create)
		api.PATCH("/tasks/:id", tasks.Patch)

		api.POST("/tasks/add_continuations", requireRole(task.RoleProvider), tasks.AddContinuationsResourceLevel)
		api.POST("/tasks/remove_continuations", requireRole(task.RoleProvider), tasks.RemoveContinuationsResourceLevel)
		api.POST("/tasks/:id/add_continuations", requireRole(task.RoleProvider), tasks.AddContinuationsItemLevel)
		api.POST("/tasks/:id/remove_continuations", requireRole(task.RoleProvider), tasks.RemoveContinuationsItemLevel)
		api.POST("/tasks/:id/update_execution_data", requireRole(task.RoleWorker), tasks.UpdateExecutionDataItemLevel)

		api.GET("/execution_info", requireRole(task.RoleProvider), execInfo.List)
		api.GET("/execution_info/:id", requireRole(task.RoleProvider), execInfo.Get)

		api.POST("/registered_workers", requireRole(task.RoleProvider), workers.Register)
		api.DELETE("/registered_workers/:id", requireRole(task.RoleProvider), workers.Deregister)
		api.GET("/registered_workers", requireRole(task.RoleProvider), workers.List)

		api.POST("/api/internal/session", sessions.Issue)
	}

	return r
}

// requestLogger logs method/path/status at info level after each request,
// following api_handler.go's latencyLogger instinct without pulling in a
// separate middleware type.
func requestLogger(log *logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Infof("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}
