// Package api serves the DAG info records and the lifecycle operations over HTTP
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/handlers"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Service  handlers.DagInfoService
	Trigger  handlers.Triggerer
	Health   map[string]handlers.HealthCheck
	Log      *logrus.Logger
	JWT      *middleware.JWTConfig
	Limiter  *middleware.RateLimiter
	Handlers *handlers.DagInfoHandler
}

// NewRouter builds the gin engine. Routes require a token only when JWT is
// set; mutating routes additionally require the operator role
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.ErrorHandler(log))
	if cfg.Limiter != nil {
		router.Use(cfg.Limiter.RateLimit())
	}

	router.GET("/health", handlers.NewHealthHandler(cfg.Health).Health)

	h := cfg.Handlers
	if h == nil {
		h = handlers.NewDagInfoHandler(cfg.Service, cfg.Trigger)
	}

	v1 := router.Group("/api/v1")
	write := []gin.HandlerFunc{}
	if cfg.JWT != nil {
		v1.Use(middleware.JWTAuth(cfg.JWT))
		write = append(write, middleware.RequireRole(middleware.RoleOperator))
	}

	dagInfos := v1.Group("/dag-infos")
	{
		dagInfos.GET("", h.ListDagInfos)
		dagInfos.GET("/due", h.ListDueDagInfos)
		dagInfos.GET("/:id", h.GetDagInfo)

		mutate := dagInfos.Group("", write...)
		mutate.POST("", h.CreateDagInfo)
		mutate.PATCH("/:id", h.UpdateDagInfo)
		mutate.DELETE("/:id", h.DeleteDagInfo)
		mutate.POST("/:id/trigger", h.TriggerDagInfo)
		mutate.POST("/:id/terminate", h.TerminateDagInfo)
		mutate.POST("/:id/succeed", h.SucceedDagInfo)
		mutate.POST("/:id/fail", h.FailDagInfo)
		mutate.POST("/:id/reset", h.ResetDagInfo)
	}

	v1.POST("/poll", append(write, h.Poll)...)

	return router
}
