package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/config"
	"github.com/stemsi/exam-proctor/internal/handler"
	"github.com/stemsi/exam-proctor/internal/logger"
	"github.com/stemsi/exam-proctor/internal/middleware"
	"github.com/stemsi/exam-proctor/internal/response"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session    *handler.SessionHandler
	Submission *handler.SubmissionHandler
	WS         *handler.WSHandler
	Health     *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	clk clock.Clock,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all so dev works
	// without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(logger.GinMiddleware(log, response.RequestID))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	writeLimiter := middleware.NewRateLimiter(cfg.WriteRateLimit, time.Minute, clk)

	// ─── 1. Public API (Rate Limited) ─────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.NoStore())
	{
		api.POST("/submissions", writeLimiter.Middleware(), handlers.Submission.SubmitExam)
		api.POST("/exams/:exam_id/sessions", writeLimiter.Middleware(), handlers.Session.StartSession)
	}

	// ─── 2. Session API (Session JWT) ─────────────────────────────────
	sessions := api.Group("/sessions/:id")
	sessions.Use(middleware.RequireSessionJWT(auth))
	{
		sessions.GET("", handlers.Session.GetSession)
		sessions.GET("/submission", handlers.Session.GetResult)
		sessions.POST("/heartbeat", handlers.Session.Heartbeat)
		sessions.PUT("/answers", handlers.Session.SyncAnswers)
		sessions.POST("/violations", handlers.Session.ReportViolation)
		sessions.POST("/submit", handlers.Session.SubmitSession)
	}

	// ─── 3. WebSocket (Token in Query) ────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionWSAuth(auth))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}
