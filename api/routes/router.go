package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmgate-checkout/api/controllers"
	"github.com/angelmondragon/farmgate-checkout/api/middleware"
	"github.com/angelmondragon/farmgate-checkout/pkg/auth/session"
	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	pkgredis "github.com/angelmondragon/farmgate-checkout/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	Ping(ctx context.Context) error
}

type checkoutService interface {
	controllers.CheckoutService
	ListAbandoned(ctx context.Context, olderThan time.Duration, limit int) ([]models.CheckoutAttempt, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	sessionChecker session.AccessSessionChecker,
	carts controllers.CartRegistry,
	stockChecker controllers.StockChecker,
	checkoutSvc checkoutService,
	dlq controllers.DLQLister,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var idempotencyStore pkgredis.IdempotencyStore
	var limiter pkgredis.RateLimiter
	deps := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		idempotencyStore = redisClient
		limiter = redisClient
		deps["redis"] = redisClient
	}

	idempotent := middleware.Idempotency(idempotencyStore, middleware.CartIdempotencyTTL, logg)
	idempotentSubmit := middleware.Idempotency(idempotencyStore, middleware.SubmitIdempotencyTTL, logg)
	pricing := controllers.CartPricing{ShippingFeeCents: cfg.Checkout.ShippingFeeCents, Currency: cfg.Checkout.Currency}
	submitPolicy := middleware.NewRateLimitPolicy(
		"checkout_submit",
		cfg.RateLimit.SubmitWindow,
		cfg.RateLimit.SubmitIPLimit,
		cfg.RateLimit.SubmitClientLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, sessionChecker, logg))
			r.Use(middleware.ClientContext(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(carts, pricing, logg))
				r.With(idempotent).Post("/items", controllers.CartAddItem(carts, pricing, logg))
				r.Patch("/items/{itemKey}", controllers.CartUpdateItem(carts, pricing, logg))
				r.Delete("/items/{itemKey}", controllers.CartRemoveItem(carts, pricing, logg))
			})
			r.Post("/stock/check", controllers.StockCheck(stockChecker, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
			r.Use(middleware.ClientContext(logg))

			r.With(idempotent).Post("/", controllers.CheckoutBegin(checkoutSvc, logg))
			r.Get("/{checkoutId}", controllers.CheckoutGet(checkoutSvc, logg))
			r.With(middleware.RateLimit(submitPolicy, limiter, logg), idempotentSubmit).Post("/{checkoutId}/submit", controllers.CheckoutSubmit(checkoutSvc, logg))
			r.Delete("/{checkoutId}", controllers.CheckoutAbandon(checkoutSvc, logg))
		})

		r.Route("/admin/checkout", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleOperationalManager, enums.RoleFinancialManager))
			r.Get("/abandoned", controllers.AdminAbandonedCheckouts(checkoutSvc, cfg.Checkout.AbandonedAfter, logg))
		})

		if dlq != nil {
			r.Route("/admin/outbox", func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
				r.Use(middleware.RequireRole(logg, enums.RoleOperationalManager))
				r.Get("/dlq", controllers.AdminOutboxDLQ(dlq, logg))
			})
		}
	})

	return r
}
