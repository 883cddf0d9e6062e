package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rechargecodes-backend/api/controllers"
	"github.com/angelmondragon/rechargecodes-backend/api/middleware"
	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/internal/stats"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/rechargecodes-backend/pkg/redis"
)

// Dependencies are the services and infrastructure the API is mounted on.
type Dependencies struct {
	DB          db.Pinger
	Redis       db.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Codes     codes.Service
	Allocator allocator.Service
	Purchases purchases.Service
	Stats     stats.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}, logg))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/plans/{planId}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSeller(logg))
				r.Post("/checkouts", controllers.OpenCheckout(deps.Purchases, logg))
				r.Post("/sales", controllers.Sell(deps.Allocator, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
				r.Post("/codes", controllers.ImportCodes(deps.Codes, logg))
				r.Get("/codes/counts", controllers.CodeCounts(deps.Codes, logg))
			})
		})

		r.Route("/purchases", func(r chi.Router) {
			r.With(middleware.RequireSeller(logg)).Post("/{purchaseId}/reject", controllers.RejectPayment(deps.Purchases, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
				r.Get("/pending-deliveries", controllers.PendingDeliveries(deps.Purchases, logg))
				r.Get("/approved", controllers.ApprovedPurchases(deps.Purchases, logg))
				r.Post("/{purchaseId}/assign", controllers.AssignCode(deps.Allocator, logg))
			})
		})

		r.With(middleware.RequireRole(logg, enums.MemberRoleAdmin)).Get("/stats", controllers.Stats(deps.Stats, logg))
	})

	return r
}
