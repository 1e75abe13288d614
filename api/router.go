// api/router.go
package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Annany2002/odkx-manager/api/handlers"
	"github.com/Annany2002/odkx-manager/api/middleware"
	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	router.Use(cors.New(corsConfig(cfg)))

	// Must precede every middleware that aborts with c.Error.
	router.Use(middleware.ErrorHandler())

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = config.DefaultRateLimit
	}
	ratelimiter := middleware.NewRateLimiter(limit, time.Minute)
	router.Use(middleware.RateLimitMiddleware(ratelimiter))

	proxyHandler := handlers.NewProxyHandler(cfg)

	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	odkRoutes := router.Group(transport.ProxyPrefix)
	odkRoutes.Use(middleware.RequireServerURL())
	{
		odkRoutes.Any("/*path", proxyHandler.Forward)
	}

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			transport.ServerURLHeader, transport.VersionHeader,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	return c
}
