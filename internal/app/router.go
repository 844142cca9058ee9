package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"teacherdev_backend/internal/config"
	"teacherdev_backend/internal/middleware"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/pkg/monitoring"
	"teacherdev_backend/pkg/security"
	"teacherdev_backend/pkg/tracing"
)

func (a *App) setupMiddlewares(ctx context.Context, router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
	router.Use(middleware.ConfigMiddleware(cfg))
}

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware())
	{
		// 教师评估接口
		teacher := authGroup.Group("")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/assessments/:assessmentId/attempts", c.assessment.StartAttempt)
			teacher.GET("/attempts/:id", c.assessment.GetAttempt)
			teacher.PUT("/attempts/:id/progress", c.assessment.SaveProgress)
			teacher.POST("/attempts/:id/submit", c.assessment.Submit)
			teacher.GET("/attempts/:id/result", c.assessment.GetResult)
		}

		// 管理员接口
		admin := authGroup.Group("/admin")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		{
			admin.POST("/assessments", c.admin.CreateAssessment)
			admin.GET("/assessments", c.admin.ListAssessments)
			admin.POST("/assessments/:assessmentId/questions", c.admin.CreateQuestion)
			admin.GET("/assessments/:assessmentId/questions", c.admin.ListQuestions)
			admin.POST("/assessments/:assessmentId/questions/import", c.admin.ImportQuestions)
			admin.POST("/attempts/:id/evaluate", c.admin.Evaluate)
			admin.POST("/evaluations/sweep", c.admin.Sweep)
		}
	}
}
