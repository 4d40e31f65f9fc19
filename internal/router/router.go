// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/elena-risteska/parter-be/internal/config"
	"github.com/elena-risteska/parter-be/internal/handler"
	"github.com/elena-risteska/parter-be/internal/middleware"
)

// Handlers bundles everything New needs to build the route table.
type Handlers struct {
	Auth         *handler.AuthHandler
	Profile      *handler.ProfileHandler
	Plays        *handler.PlayHandler
	Reservations *handler.ReservationHandler
}

// New builds the echo instance with the full route table.  rdb may be
// nil, in which case rate limiting and response caching fall through.
func New(cfg config.Config, h Handlers, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	cache := middleware.CacheJSON(config.LoadCacheConfig(), rdb)
	limit := middleware.RateLimit(config.LoadRateLimitConfig(), rdb)
	auth := middleware.JWTAuth(cfg.JWTSecret)

	e.GET("/health", handler.Health)

	v1 := e.Group("/v1")

	// Public catalog and seat map.  Both are read-heavy, so they sit
	// behind the short-TTL response cache.
	v1.GET("/plays", h.Plays.List, cache)
	v1.GET("/plays/:id", h.Plays.Get, cache)
	v1.GET("/plays/:id/seats", h.Reservations.SeatMap, cache)

	// Auth.  Login and refresh are rate limited by caller to slow
	// credential stuffing.
	ag := v1.Group("/auth")
	ag.POST("/register", h.Auth.Register, limit)
	ag.POST("/login", h.Auth.Login, limit)
	ag.POST("/refresh", h.Auth.Refresh, limit)
	ag.POST("/logout", h.Auth.Logout)
	ag.GET("/me", h.Auth.Me, auth)

	// Profile.
	pg := v1.Group("/profile", auth)
	pg.GET("", h.Profile.Get)
	pg.PUT("", h.Profile.Update)
	pg.PUT("/password", h.Profile.ChangePassword)
	pg.DELETE("", h.Profile.Delete)

	// Reservations.  Mutations are rate limited so one caller cannot
	// hammer the per-play lock.
	rg := v1.Group("/reservations", auth)
	rg.POST("", h.Reservations.Create, limit)
	rg.GET("", h.Reservations.ListMine)
	rg.GET("/:id", h.Reservations.Get)
	rg.PUT("/:id", h.Reservations.Update, limit)
	rg.DELETE("/:id", h.Reservations.Cancel, limit)

	// Back office.
	admin := v1.Group("/admin", auth, middleware.RequireRole("ADMIN"))
	admin.POST("/plays", h.Plays.Create)
	admin.PUT("/plays/:id", h.Plays.Update)
	admin.DELETE("/plays/:id", h.Plays.Delete)
	admin.GET("/reservations", h.Reservations.ListAll)

	return e
}
