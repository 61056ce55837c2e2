package router

import (
	"github.com/gin-gonic/gin"

	"github.com/worknet/backend/internal/config"
	"github.com/worknet/backend/internal/http/handlers"
	"github.com/worknet/backend/internal/http/middleware"
	"github.com/worknet/backend/internal/service"
)

// SetupRouter собирает все маршруты сервиса.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	rpcHandler *handlers.RPCHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.GET("/me", authHandler.Me)
	}

	api.GET("/ws", wsHandler.Handle)

	// Все операции заказов идут через единую RPC точку входа.
	rpc := api.Group("/")
	rpc.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	rpc.Use(middleware.AuthMiddleware(tokenManager))
	{
		rpc.POST("/rpc", rpcHandler.Handle)
	}

	return r
}
