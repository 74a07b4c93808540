package api

import (
	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/api/handler"
	"github.com/use-agent/threadgrab/api/middleware"
	"github.com/use-agent/threadgrab/cache"
	"github.com/use-agent/threadgrab/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(sc handler.Scraper, sess handler.Sessions, jobs *handler.Jobs, cc *cache.Cache, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(sc, sess))

	// Protected group: auth, then rate limit for the browser-backed routes.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}

	// Session endpoints are cheap and polled by the login flow; they skip
	// the rate limiter.
	protected.GET("/session", handler.SessionStatus(sess))
	protected.POST("/session/login", handler.Login(sess))
	protected.POST("/session/resume", handler.Resume(sess))
	protected.DELETE("/session/login", handler.CancelLogin(sess))

	limited := protected.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))

	// Threads
	limited.POST("/thread", handler.Thread(sc, cc))
	if jobs != nil {
		limited.POST("/threads", jobs.PostThreadJob())
		protected.GET("/threads/:id", jobs.GetThreadJob())
	}

	// Single-page extractors
	limited.GET("/trends", handler.Trends(sc))
	limited.POST("/tweet", handler.Tweet(sc))
	limited.GET("/search", handler.Search(sc))

	return r
}
