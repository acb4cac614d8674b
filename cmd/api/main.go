package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmgate-checkout/api/routes"
	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/internal/checkout"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/internal/stock"
	"github.com/angelmondragon/farmgate-checkout/pkg/auth/session"
	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/metrics"
	"github.com/angelmondragon/farmgate-checkout/pkg/migrate"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox"
	"github.com/angelmondragon/farmgate-checkout/pkg/pubsub"
	"github.com/angelmondragon/farmgate-checkout/pkg/redis"
	"github.com/angelmondragon/farmgate-checkout/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	sessionManager, err := session.NewManager(redisClient)
	requireResource(ctx, logg, "session manager", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	carts, err := cart.NewRegistry(func(clientID string) (cart.Persister, error) {
		return cart.NewRedisPersister(redisClient, clientID, cfg.Cart.TTL)
	}, logg, cfg.Cart.TTL)
	requireResource(ctx, logg, "cart registry", err)

	backendClient, err := backend.New(cfg.Backend, logg)
	requireResource(ctx, logg, "backend client", err)

	validator, err := stock.NewValidator(backendClient, checkoutMetrics, logg)
	requireResource(ctx, logg, "stock validator", err)

	var remoteSessions *backend.Client
	if cfg.Backend.SessionCheck {
		remoteSessions = backendClient
	}
	guard, err := newGuard(sessionManager, remoteSessions)
	requireResource(ctx, logg, "session guard", err)

	logout, err := identity.NewLogoutScheduler(sessionManager, carts, cfg.Checkout.LogoutDelay, logg)
	requireResource(ctx, logg, "logout scheduler", err)

	var live payments.Gateway
	var prober payments.Prober
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		requireResource(ctx, logg, "square client", err)
		liveGateway, err := payments.NewLiveGateway(backendClient, squareClient, cfg.Checkout.Currency, logg)
		requireResource(ctx, logg, "live gateway", err)
		live = liveGateway
		prober = payments.NewHTTPProber(squareClient.BaseURL(), cfg.Payments.ProbeTimeout)
	} else {
		logg.Warn(ctx, "square not configured, checkout runs on the simulated gateway")
	}

	selector, err := payments.NewSelector(
		live,
		payments.NewSimulatedGateway(cfg.Payments.SimulatedLatency),
		prober,
		cfg.Payments.ForceSimulated,
		checkoutMetrics,
		logg,
	)
	requireResource(ctx, logg, "gateway selector", err)

	saga, err := checkout.NewSaga(backendClient, validator, guard, checkoutMetrics, checkout.SagaConfig{
		ShippingFeeCents: cfg.Checkout.ShippingFeeCents,
		Currency:         cfg.Checkout.Currency,
	}, logg)
	requireResource(ctx, logg, "checkout saga", err)

	var publisher checkout.Publisher = checkout.NoopPublisher{}
	var pubsubClient *pubsub.Client
	switch {
	case cfg.Outbox.Enabled:
		outboxPublisher, err := checkout.NewOutboxPublisher(dbClient, outbox.NewService(outbox.NewRepository(dbClient.DB()), logg))
		requireResource(ctx, logg, "checkout outbox", err)
		publisher = outboxPublisher
	case cfg.PubSub.Enabled():
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		pubsubPublisher, err := checkout.NewPubSubPublisher(pubsubClient.CheckoutPublisher())
		requireResource(ctx, logg, "checkout publisher", err)
		publisher = pubsubPublisher
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Saga:       saga,
		Selector:   selector,
		Carts:      carts,
		Repository: checkout.NewRepository(dbClient.DB()),
		Publisher:  publisher,
		Logout:     logout,
		Logger:     logg,
		AttemptTTL: cfg.Checkout.AttemptTTL,
	})
	requireResource(ctx, logg, "checkout service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"square":   cfg.Square.Enabled(),
		"pubsub":   cfg.PubSub.Enabled(),
		"outbox":   cfg.Outbox.Enabled,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			carts,
			validator,
			checkoutSvc,
			outbox.NewDLQRepository(dbClient.DB()),
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
		cancel()
	}

	var closeErr error
	if pubsubClient != nil {
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
	}
	closeErr = multierr.Append(closeErr, redisClient.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(serverCtx, "error closing resources", closeErr)
	}
}

// newGuard keeps a nil backend client from becoming a non-nil interface.
func newGuard(sessions *session.Manager, remote *backend.Client) (*identity.TokenGuard, error) {
	if remote == nil {
		return identity.NewTokenGuard(sessions, nil)
	}
	return identity.NewTokenGuard(sessions, remote)
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "resource", name), "failed to initialize resource", err)
	os.Exit(1)
}
