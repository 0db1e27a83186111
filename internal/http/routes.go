package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mineduel/internal/config"
	"mineduel/internal/http/handlers"
	"mineduel/internal/http/middleware"
	"mineduel/internal/service"
	"mineduel/internal/ws"
)

// RegisterRoutes wires the REST surface, the metrics endpoint, the two
// websocket channels, and the static frontend.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, hub *ws.Hub, auth *service.AdminAuth) {
	h := handlers.NewHandler(cfg, auth)

	// Health checks are never rate limited.
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	api := r.Group("/api")
	api.Use(apiLimiter(cfg))
	api.GET("/config", h.GameConfig)
	api.POST("/admin/login", authLimiter(cfg), h.AdminLogin)

	r.GET("/ws", ws.HandleWS(hub))
	r.GET("/ws/admin", ws.HandleAdminWS(hub, auth))

	// Frontend static files
	r.StaticFS("/assets", gin.Dir("web/assets", false))
	r.NoRoute(func(c *gin.Context) {
		c.File("web/index.html")
	})
}

// apiLimiter prefers Redis when configured, otherwise the in-memory
// fixed-window limiter.
func apiLimiter(cfg *config.Config) gin.HandlerFunc {
	if cfg.RedisAddr != "" {
		return middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow)
	}
	return middleware.SimpleRateLimit(cfg.APIRateLimit, cfg.APIRateWindow)
}

func authLimiter(cfg *config.Config) gin.HandlerFunc {
	if cfg.RedisAddr != "" {
		return middleware.RedisRateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow)
	}
	return middleware.SimpleRateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow)
}
