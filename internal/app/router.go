package app

import (
	"github.com/gin-gonic/gin"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/middleware"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/monitoring"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/subjects", c.catalog.ListSubjects)
		authGroup.GET("/subjects/:id/blocks", c.catalog.ListBlocks)

		authGroup.POST("/attempts", c.attempt.StartAttempt)
		authGroup.GET("/attempts/:id", c.attempt.GetAttempt)
		authGroup.POST("/attempts/:id/submit", c.attempt.Submit)
		authGroup.PUT("/attempts/:id/progress", c.attempt.SaveProgress)

		authGroup.GET("/stats", c.attempt.GetStats)

		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.GET("/subjects/:id/question-usage", c.catalog.ListQuestionUsage)
		}
	}
}
