package handler

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/handler/middleware"
	"github.com/makkenzo/keybind/internal/ierr"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config         *config.ServerConfig
	LicenseService *service.LicenseService
	AuthService    *service.AuthService
	Redis          *redis.Client
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	appLogger := deps.Logger

	healthHandler := NewHealthHandler(deps.LicenseService, deps.Redis, appLogger)
	licenseHandler := NewLicenseHandler(deps.LicenseService, appLogger)
	adminHandler := NewAdminHandler(deps.LicenseService, appLogger)
	authHandler := NewAuthHandler(deps.AuthService, appLogger)

	adminAuth := middleware.AdminAuthMiddleware(deps.AuthService, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\" %s\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
			param.Request.Header.Get(middleware.RequestIDHeader),
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.String("request_id", middleware.RequestIDFrom(c)), zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	origins := []string{"*"}
	if deps.Config != nil && len(deps.Config.AllowOrigins) > 0 {
		origins = deps.Config.AllowOrigins
	}
	corsConfig := cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			middleware.RequestIDHeader,
		},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(origins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/verify", licenseHandler.Verify)

	router.POST("/admin/login", authHandler.Login)

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(adminAuth)
	{
		adminRoutes.POST("/create", adminHandler.Create)
		adminRoutes.POST("/list", adminHandler.List)
		adminRoutes.POST("/revoke", adminHandler.Revoke)
		adminRoutes.POST("/stats", adminHandler.Stats)
	}

	return router
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
