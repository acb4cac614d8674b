package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/migrate"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmgate-checkout/pkg/pubsub"
	"github.com/angelmondragon/farmgate-checkout/pkg/redis"
)

// claimTTL outlives the longest redelivery window of the checkout topic.
const claimTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: publisherName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: publisherName,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"topic": cfg.PubSub.CheckoutTopic})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down gracefully")
}

// run wires dependencies and blocks in Service.Run. Resources opened here
// are closed in reverse order on return.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	if !cfg.PubSub.Enabled() {
		return fmt.Errorf("outbox publisher needs a checkout topic: %s is empty", config.EnvPubSubCheckoutTopic)
	}

	var closers []namedCloser
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logg.Error(context.Background(), "error closing "+closers[i].name, err)
			}
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	closers = append(closers, namedCloser{"database", dbClient})

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	closers = append(closers, namedCloser{"redis", redisClient})

	guard, err := idempotency.NewGuard(redisClient, claimTTL)
	if err != nil {
		return fmt.Errorf("claim guard: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	closers = append(closers, namedCloser{"pubsub", pubsubClient})

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Guard:         guard,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}

type namedCloser struct {
	name string
	io.Closer
}
