package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/telecare/scheduling-engine/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.SugaredLogger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Provider schedule management
	r.Get("/providers/{id}/slots", getSlotsHandler(cfg.Service))
	r.Put("/providers/{id}/availability", setWeeklyAvailabilityHandler(cfg.Service))
	r.Post("/providers/{id}/blocks", blockSlotHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Post("/appointments/recurring", recurringBookingHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}/status", updateStatusHandler(cfg.Service))
	r.Put("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))

	return r
}
