package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	appsvc "docchat/internal/app"
	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.MaxMultipartMemory = cfg.App.MaxUploadBytes
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID(), middleware.CORS(cfg.App.CORSOrigins))
	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware(cfg.App.Name))
	}

	healthHandler := handler.NewHealthHandler(app.Health, cfg.App.Env, bootstrap.Version)
	documentHandler := handler.NewDocumentHandler(app.Documents, cfg.App.MaxUploadBytes)
	chatHandler := handler.NewChatHandler(app.Chat)
	adminHandler := handler.NewAdminHandler(app.Admin)
	authHandler := handler.NewAuthHandler(app.Auth)

	health := router.Group("/health")
	health.GET("", healthHandler.Check)
	health.GET("/detailed", healthHandler.Detailed)
	health.GET("/ready", healthHandler.Ready)
	health.GET("/live", healthHandler.Live)

	limits := cfg.RateLimit
	limiter := func(name string, requests int, window time.Duration, message string) gin.HandlerFunc {
		if !limits.Enabled || app.Redis == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(app.Redis, middleware.RateLimit{Name: name, Requests: requests, Window: window, Message: message})
	}

	api := router.Group("/api")
	api.Use(limiter("api", limits.APIRequests, limits.APIWindow, ""))

	api.POST("/auth/login", authHandler.Login)

	documents := api.Group("/documents")
	documents.POST("/upload", limiter("upload", limits.UploadReqs, limits.UploadWindow, "You have exceeded the upload limit. Please try again later."), documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/stats", documentHandler.Stats)
	documents.GET("/:id", documentHandler.Get)
	documents.DELETE("/:id", documentHandler.Delete)

	chat := api.Group("/chat")
	chatLimit := limiter("chat", limits.ChatRequests, limits.ChatWindow, "Please slow down. Too many chat messages.")
	chat.POST("", chatLimit, chatHandler.SendMessage)
	chat.POST("/stream", chatLimit, chatHandler.StreamMessage)
	chat.GET("/history/:sessionId", chatHandler.GetHistory)

	admin := api.Group("/admin")
	if cfg.Auth.Enabled {
		admin.Use(middleware.AuthJWT(cfg.Auth.JWTSecret), middleware.RequireRole(appsvc.AdminRole))
	}
	admin.POST("/index/create", adminHandler.CreateIndex)
	admin.GET("/stats/search", adminHandler.SearchStats)
	admin.POST("/cache/clear", adminHandler.ClearCache)
	admin.GET("/sessions", adminHandler.ListSessions)
	admin.GET("/sessions/:sessionId/stats", adminHandler.SessionStats)
	admin.DELETE("/sessions/:sessionId", adminHandler.ClearSession)

	return router
}
