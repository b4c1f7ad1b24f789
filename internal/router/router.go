package router

import (
	"net/http"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/examlock/examlock-backend/internal/handler"
	"github.com/examlock/examlock-backend/internal/middleware"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	TwoFactor *handler.TwoFactorHandler
	Attempt   *handler.AttemptHandler
	Admin     *handler.AdminHandler
	Monitor   *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	users middleware.RoleSource,
	guard *middleware.IntegrityGuard,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID",
		"X-SafeExamBrowser-RequestHash", "X-Exam-Desktop-Client"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for credential endpoints (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/2fa/verify", handlers.Auth.VerifyTwoFactor)
		auth.POST("/refresh", handlers.Auth.Refresh)
		auth.POST("/logout", handlers.Auth.Logout)

		// Authenticated profile and enrollment routes
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
		auth.POST("/2fa/setup", middleware.RequireAuth(authService), handlers.TwoFactor.StartSetup)
		auth.POST("/2fa/enable", middleware.RequireAuth(authService), handlers.TwoFactor.Enable)
		auth.POST("/2fa/disable", middleware.RequireAuth(authService), handlers.TwoFactor.Disable)
	}

	// ─── 2. Attempt Group (JWT + Integrity Binding) ────────────────────
	// Start is exam-scoped: the integrity check runs against the exam config
	// before any attempt row exists. The rest are attempt-scoped and a
	// failed check voids the in-progress attempt.
	examAPI := router.Group("/api/v1/exams")
	examAPI.Use(middleware.RequireAuth(authService))
	{
		examAPI.POST("/:exam_id/attempts",
			middleware.RequireRole(users, model.RoleStudent),
			guard.RequireExamIntegrity(),
			handlers.Attempt.Start,
		)
	}

	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(
		middleware.RequireAuth(authService),
		guard.RequireAttemptIntegrity(),
	)
	{
		attemptAPI.GET("/:attempt_id", handlers.Attempt.Get)
		attemptAPI.PUT("/:attempt_id/answers", handlers.Attempt.SaveAnswer)
		attemptAPI.POST("/:attempt_id/submit", handlers.Attempt.Submit)
	}

	// ─── 3. WebSocket Group (Proctor Monitor) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor, model.RoleAssistant),
	)
	{
		ws.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExam)
	}

	// ─── 4. Admin Group (JWT + RBAC, live role check) ──────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAuth(authService))
	{
		adminAPI.PUT("/users/:user_id/roles",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin),
			handlers.Admin.ChangeRoles,
		)

		adminAPI.GET("/audit",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin),
			handlers.Admin.ListAudit,
		)

		adminAPI.POST("/attempts/:attempt_id/void",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor),
			handlers.Admin.VoidAttempt,
		)
		adminAPI.POST("/attempts/:attempt_id/grade",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor),
			handlers.Admin.AssignGrade,
		)

		adminAPI.GET("/exams/:exam_id/attempts",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor, model.RoleAssistant),
			handlers.Admin.ListAttempts,
		)
		adminAPI.GET("/exams/:exam_id/integrity",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor),
			handlers.Admin.GetIntegrityConfig,
		)
		adminAPI.PUT("/exams/:exam_id/integrity",
			middleware.RequireRole(users, model.RoleSuperAdmin, model.RoleAdmin, model.RoleInstructor),
			handlers.Admin.UpdateIntegrityConfig,
		)
	}

	return router
}
