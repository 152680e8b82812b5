package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/metrics"
)

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(IdentityMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Availability
	r.Post("/availability", publishAvailabilityHandler(cfg.Service))
	r.Get("/availability", listAvailabilityHandler(cfg.Service))

	// Bookings
	r.Post("/bookings", createBookingHandler(cfg.Service, cfg.Metrics))
	r.Get("/bookings", listBookingsHandler(cfg.Service))
	r.Get("/bookings/{reference}", getBookingHandler(cfg.Service))
	r.Post("/bookings/{reference}/cancel", cancelBookingHandler(cfg.Service, cfg.Metrics))

	return r
}
