package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tixmarket-backend/api/controllers"
	"github.com/angelmondragon/tixmarket-backend/api/middleware"
	"github.com/angelmondragon/tixmarket-backend/internal/escrow"
	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

// CacheStore backs idempotent replays and is pinged for readiness.
type CacheStore interface {
	middleware.IdempotencyStore
	controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache CacheStore,
	profiles middleware.ProfileLoader,
	escrowService escrow.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": cache,
		}))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/internal/v1/escrow", func(r chi.Router) {
		r.Use(middleware.InternalKey(cfg.Internal.ServiceKey, logg))
		r.Use(middleware.Idempotency(cache, logg))
		r.Post("/holds", controllers.EscrowCreateHold(escrowService, logg))
		r.Post("/holds/{holdId}/retry-funding", controllers.EscrowRetryFunding(escrowService, logg))
	})

	r.Route("/api/admin/v1/escrow", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireAdmin(profiles, logg))
			r.Use(middleware.Idempotency(cache, logg))
			r.Post("/release", controllers.EscrowRelease(escrowService, logg))
			r.Get("/holds", controllers.EscrowList(escrowService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.CronOrAdmin(cfg.Internal.CronSecret, cfg.JWT, profiles, logg))
			r.Use(middleware.Idempotency(cache, logg))
			r.Get("/sweep", controllers.EscrowSweep(escrowService, logg))
			r.Post("/sweep", controllers.EscrowSweep(escrowService, logg))
		})
	})

	return r
}
