package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/WebabyApps/RideMate/internal/config"
	"github.com/WebabyApps/RideMate/internal/handler"
	"github.com/WebabyApps/RideMate/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this to verify liveness.
	e.GET("/healthz", handler.Health)
}

// RegisterRides registers the public ride browse surface and the
// owner-only ride mutations.  Browse endpoints carry no middleware so
// guests can inspect rides before signing in; mutations require a valid
// access token.
func RegisterRides(e *echo.Echo, r *handler.RideHandler, res *handler.ReservationHandler, s *handler.StreamHandler, jwtSecret string) {
	// Public browse: search, detail, passenger list and the live
	// seats-remaining stream.
	e.GET("/v1/rides", r.SearchRides)
	e.GET("/v1/rides/:id", r.GetRide)
	e.GET("/v1/rides/:id/bookings", res.ListBookings)
	e.GET("/v1/rides/:id/seats/stream", s.StreamSeats)

	// Authenticated ride mutations.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.POST("/rides", r.CreateRide)
	auth.DELETE("/rides/:id", r.DeleteRide)
}

// RegisterBookings registers the reservation endpoints.  They require a
// valid access token and sit behind the Redis token bucket so a request
// flood cannot monopolize the store's row locks.
func RegisterBookings(e *echo.Echo, res *handler.ReservationHandler, jwtSecret string, rdb *redis.Client) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	g.POST("/rides/:id/bookings", res.CreateBooking)
	g.DELETE("/bookings/:id", res.CancelBooking)
}
