package app

import (
	"edu_portal_backend/docs"
	"edu_portal_backend/internal/config"
	"edu_portal_backend/internal/middleware"
	"edu_portal_backend/internal/model"
	"edu_portal_backend/pkg/monitoring"
	"edu_portal_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	if c.health != nil {
		router.GET("/api/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		registerStudentRoutes(authGroup, c, cfg)
		registerAdminRoutes(authGroup, c)
	}
}

func registerStudentRoutes(group *gin.RouterGroup, c *controllers, cfg *config.Config) {
	attempts := group.Group("/attempts")
	{
		// 客户端重试较多的两个接口按学生限流
		attempts.POST("/start", security.AttemptLimiter(cfg.RateLimit, "start"), c.attempt.Start)
		attempts.PUT("/:id/complete", security.AttemptLimiter(cfg.RateLimit, "complete"), c.attempt.Complete)
		attempts.GET("/:id", c.attempt.Get)
		attempts.GET("/:id/questions", c.attempt.Questions)
	}

	group.GET("/assessments/student", c.assessment.ListForStudent)
	group.GET("/students/marks", c.marks.StudentMarks)
}

func registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.RoleTeacher, model.RoleAdmin))
	{
		admin.GET("/assessments", c.assessment.ListAssessments)
		admin.POST("/assessments", c.assessment.CreateAssessment)
		admin.GET("/assessments/:id", c.assessment.GetAssessment)
		admin.PUT("/assessments/:id", c.assessment.UpdateAssessment)
		admin.DELETE("/assessments/:id", c.assessment.DeleteAssessment)
		admin.GET("/assessments/:id/questions", c.assessment.ListQuestions)
		admin.POST("/assessments/:id/questions", c.assessment.AddQuestion)
		admin.DELETE("/questions/:id", c.assessment.DeleteQuestion)

		admin.POST("/attempts/:id/abandon", c.attempt.Abandon)
		admin.GET("/marks", c.marks.Report)
	}
}
