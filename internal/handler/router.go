package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
)

// Handlers bundles the HTTP handlers registered on the router.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Classrooms  *ClassroomHandler
	Assignments *AssignmentHandler
	Submissions *SubmissionHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under the given prefix. Authentication and
// role gates run as middleware; fine-grained ownership checks live in the
// policy engine behind the services.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authService *service.AuthService) {
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/forgot-password", h.Auth.ForgotPassword)
		auth.POST("/reset-password", h.Auth.ResetPassword)

		session := auth.Group("", middleware.JWT(authService))
		session.POST("/logout", h.Auth.Logout)
		session.POST("/change-password", h.Auth.ChangePassword)
		session.GET("/me", h.Auth.Me)
	}

	// signed-link redemption carries its own authorization in the token
	api.GET("/downloads", h.Submissions.RedeemDownloadLink)

	protected := api.Group("", middleware.JWT(authService))

	users := protected.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer), h.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Delete)
		users.POST("/:id/deactivate", middleware.RequireRoles(models.RoleAdmin), h.Users.Deactivate)
	}

	classrooms := protected.Group("/classrooms")
	{
		classrooms.GET("", h.Classrooms.List)
		classrooms.POST("", middleware.RequireRoles(models.RoleLecturer), h.Classrooms.Create)
		classrooms.POST("/join", middleware.RequireRoles(models.RoleStudent), h.Classrooms.Join)
		classrooms.GET("/:id", h.Classrooms.Get)
		classrooms.PUT("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Classrooms.Update)
		classrooms.DELETE("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Classrooms.Delete)
		classrooms.POST("/:id/leave", middleware.RequireRoles(models.RoleStudent), h.Classrooms.Leave)
		classrooms.GET("/:id/students", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Classrooms.Students)
		classrooms.POST("/:id/students", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Classrooms.AddStudents)
		classrooms.DELETE("/:id/students", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Classrooms.RemoveStudents)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.GET("", h.Assignments.List)
		assignments.POST("", middleware.RequireRoles(models.RoleLecturer), h.Assignments.Create)
		assignments.GET("/:id", h.Assignments.Get)
		assignments.PUT("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Assignments.Update)
		assignments.DELETE("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Assignments.Delete)
		assignments.POST("/:id/submissions", middleware.RequireRoles(models.RoleStudent), h.Submissions.Create)
		assignments.GET("/:id/report", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Reports.GradeReport)
	}

	submissions := protected.Group("/submissions")
	{
		submissions.GET("", h.Submissions.List)
		submissions.GET("/:id", h.Submissions.Get)
		submissions.PUT("/:id", h.Submissions.Update)
		submissions.DELETE("/:id", h.Submissions.Delete)
		submissions.POST("/:id/grade", middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), h.Submissions.Grade)
	}

	protected.GET("/attachments/:handle/download", h.Assignments.DownloadAttachment)
	protected.GET("/files/:handle/download", h.Submissions.DownloadFile)
	protected.POST("/files/:handle/link", h.Submissions.CreateDownloadLink)
}
