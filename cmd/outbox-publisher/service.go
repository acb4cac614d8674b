package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

const (
	publisherName         = "outbox-publisher"
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	purgeEvery            = time.Hour
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id string) error
	MarkFailedTx(tx *gorm.DB, id string, err error) error
	MarkTerminalTx(tx *gorm.DB, id string, err error, terminalAttempts int) error
	PurgePublished(tx *gorm.DB, before time.Time) (int64, error)
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

// claimGuard remembers events already handed to Pub/Sub, so a row whose
// bookkeeping write was lost is marked published instead of sent twice.
type claimGuard interface {
	Claim(ctx context.Context, publisher, eventID string) (bool, error)
	Release(ctx context.Context, publisher, eventID string) error
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DLQRepository    dlqRepository
	Guard            claimGuard
	PublisherFactory publisherFactory
}

func (p ServiceParams) validate() error {
	missing := map[string]bool{
		"config":            p.Config == nil,
		"logger":            p.Logger == nil,
		"database client":   p.DB == nil,
		"pubsub client":     p.PubSub == nil,
		"outbox repository": p.Repository == nil,
		"dlq repository":    p.DLQRepository == nil,
	}
	for _, name := range []string{"config", "logger", "database client", "pubsub client", "outbox repository", "dlq repository"} {
		if missing[name] {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// Service drains checkout events from the transactional outbox into Pub/Sub.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	dlq          dlqRepository
	guard        claimGuard
	publisherFor publisherFactory
	topics       map[enums.OutboxAggregateType]string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	retention    time.Duration
	lastPurge    time.Time
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	factory := params.PublisherFactory
	if factory == nil {
		factory = gcpPublisherFactory(params.PubSub)
	}
	cfg := params.Config.Outbox

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		dlq:          params.DLQRepository,
		guard:        params.Guard,
		publisherFor: factory,
		topics: map[enums.OutboxAggregateType]string{
			enums.AggregateCheckoutAttempt: params.Config.PubSub.CheckoutTopic,
		},
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		retention:    cfg.Retention,
		now:          time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; batch errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	pace := newPacer(s.pollInterval)
	for ctx.Err() == nil {
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			err = pace.waitAfterError(ctx)
		case processed:
			pace.reset()
			continue
		default:
			pace.reset()
			s.maybePurge(ctx)
			err = pace.waitIdle(ctx)
		}
		if err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher stopping")
	return ctx.Err()
}

// processBatch locks up to batchSize rows and dispatches each inside one
// transaction. It reports whether any row was seen.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	seen := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		seen = len(events) > 0
		for _, event := range events {
			if err := s.record(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

func (s *Service) maybePurge(ctx context.Context) {
	if s.retention <= 0 || s.now().Sub(s.lastPurge) < purgeEvery {
		return
	}
	s.lastPurge = s.now()
	cutoff := s.now().UTC().Add(-s.retention)

	var purged int64
	err := s.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		purged, err = s.repo.PurgePublished(tx, cutoff)
		return err
	})
	switch {
	case err != nil:
		s.logg.Error(ctx, "outbox purge failed", err)
	case purged > 0:
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"purged": purged, "cutoff": cutoff}), "published outbox events purged")
	}
}

var errNoPublisher = errors.New("publisher not configured")
