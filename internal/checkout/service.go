package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

type gatewaySelector interface {
	Select(ctx context.Context) payments.Gateway
	ByKind(kind enums.GatewayKind) (payments.Gateway, error)
}

type cartRegistry interface {
	For(ctx context.Context, clientID, identityKey string) (*cart.View, error)
}

type logoutScheduler interface {
	Schedule(ctx context.Context, id identity.Identity, clientID string) time.Time
}

type attemptEntry struct {
	attempt Attempt
	running bool
	cancel  context.CancelFunc
	expires time.Time
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Saga       *Saga
	Selector   gatewaySelector
	Carts      cartRegistry
	Repository Repository
	Publisher  Publisher
	Logout     logoutScheduler
	Logger     *logger.Logger
	AttemptTTL time.Duration
}

// Service owns checkout attempts. Each attempt runs at most one submission at a time.
type Service struct {
	saga      *Saga
	selector  gatewaySelector
	carts     cartRegistry
	repo      Repository
	publisher Publisher
	logout    logoutScheduler
	logg      *logger.Logger
	ttl       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	attempts map[string]*attemptEntry
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Saga == nil {
		return nil, fmt.Errorf("saga required")
	}
	if p.Selector == nil {
		return nil, fmt.Errorf("gateway selector required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart registry required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Publisher == nil {
		p.Publisher = NoopPublisher{}
	}
	if p.AttemptTTL <= 0 {
		p.AttemptTTL = 30 * time.Minute
	}
	return &Service{
		saga:      p.Saga,
		selector:  p.Selector,
		carts:     p.Carts,
		repo:      p.Repository,
		publisher: p.Publisher,
		logout:    p.Logout,
		logg:      p.Logger,
		ttl:       p.AttemptTTL,
		now:       time.Now,
		attempts:  map[string]*attemptEntry{},
	}, nil
}

// Begin probes the gateways once and opens an attempt fixed to the chosen one.
func (s *Service) Begin(ctx context.Context, clientID string, id identity.Identity) (Attempt, error) {
	if id.IsGuest() {
		return Attempt{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required to check out")
	}
	if clientID == "" {
		return Attempt{}, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	gateway := s.selector.Select(ctx)
	now := s.now()
	attempt := Attempt{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		Identity:       id,
		IdempotencyKey: uuid.NewString(),
		Gateway:        gateway.Kind(),
		State:          enums.SagaStateIdle,
		Currency:       s.saga.cfg.Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.sweepLocked(now)
	s.attempts[attempt.ID] = &attemptEntry{attempt: attempt, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	s.persist(ctx, attempt)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"checkout_id": attempt.ID, "gateway": string(attempt.Gateway)}), "checkout attempt opened")
	return attempt, nil
}

// Get returns a copy of the attempt.
func (s *Service) Get(ctx context.Context, checkoutID, clientID string, id identity.Identity) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.lookupLocked(checkoutID, clientID, id)
	if err != nil {
		return Attempt{}, err
	}
	return entry.attempt, nil
}

// Submit runs the saga for the attempt. ctx cancellation abandons it.
func (s *Service) Submit(ctx context.Context, checkoutID, clientID string, in SubmitInput) (Attempt, Outcome, error) {
	s.mu.Lock()
	entry, err := s.lookupLocked(checkoutID, clientID, in.Identity)
	if err != nil {
		s.mu.Unlock()
		return Attempt{}, Outcome{}, err
	}
	if entry.running {
		s.mu.Unlock()
		return Attempt{}, Outcome{}, pkgerrors.New(pkgerrors.CodeConflict, "checkout submission already in progress")
	}
	if _, err := entry.attempt.resumePoint(); err != nil {
		s.mu.Unlock()
		return Attempt{}, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "checkout cannot be submitted")
	}
	runCtx, cancel := context.WithCancel(ctx)
	entry.running = true
	entry.cancel = cancel
	attempt := entry.attempt
	s.mu.Unlock()
	defer cancel()

	final, out, err := s.run(runCtx, attempt, clientID, in)
	if err == nil && out.State == enums.SagaStateSessionExpired && s.logout != nil {
		at := s.logout.Schedule(ctx, in.Identity, clientID)
		out.LogoutAt = &at
		recorded := out
		final.Outcome = &recorded
	}

	s.mu.Lock()
	entry.attempt = final
	entry.running = false
	entry.cancel = nil
	entry.expires = s.now().Add(s.ttl)
	s.mu.Unlock()
	if err != nil {
		return Attempt{}, Outcome{}, err
	}

	if !out.Blocked {
		s.publish(ctx, final, out)
	}
	return final, out, nil
}

func (s *Service) run(ctx context.Context, attempt Attempt, clientID string, in SubmitInput) (Attempt, Outcome, error) {
	gateway, err := s.selector.ByKind(attempt.Gateway)
	if err != nil {
		return attempt, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment gateway unavailable")
	}
	store, err := s.carts.For(ctx, clientID, attempt.Identity.Key())
	if err != nil {
		return attempt, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cart unavailable")
	}
	final, out := s.saga.Run(ctx, attempt, gateway, store, in, s.record)
	return final, out, nil
}

// record mirrors in-flight transitions so Get observes progress.
func (s *Service) record(ctx context.Context, a Attempt) {
	s.mu.Lock()
	if entry, ok := s.attempts[a.ID]; ok {
		entry.attempt = a
	}
	s.mu.Unlock()
	s.persist(ctx, a)
}

// Abandon cancels a running submission, or closes an idle or failed attempt.
func (s *Service) Abandon(ctx context.Context, checkoutID, clientID string, id identity.Identity) (Attempt, error) {
	s.mu.Lock()
	entry, err := s.lookupLocked(checkoutID, clientID, id)
	if err != nil {
		s.mu.Unlock()
		return Attempt{}, err
	}
	if entry.running {
		entry.cancel()
		attempt := entry.attempt
		s.mu.Unlock()
		return attempt, nil
	}
	switch entry.attempt.State {
	case enums.SagaStateSucceeded:
		s.mu.Unlock()
		return Attempt{}, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already succeeded")
	case enums.SagaStateAbandoned:
		attempt := entry.attempt
		s.mu.Unlock()
		return attempt, nil
	}
	attempt := entry.attempt
	paymentID := attempt.ProviderPaymentID
	attempt.State = enums.SagaStateAbandoned
	attempt.ProviderPaymentID = ""
	attempt.UpdatedAt = s.now()
	out := Outcome{State: enums.SagaStateAbandoned, Message: messageFor("", enums.SagaStateAbandoned, "", attempt)}
	attempt.Outcome = &out
	entry.attempt = attempt
	s.mu.Unlock()

	if paymentID != "" && attempt.Transaction == nil {
		if gateway, err := s.selector.ByKind(attempt.Gateway); err == nil {
			if err := gateway.Void(context.WithoutCancel(ctx), paymentID); err != nil {
				s.logg.Error(s.logg.WithCheckoutID(ctx, attempt.ID), "failed to void authorization", err)
			}
		}
	}
	s.persist(ctx, attempt)
	s.publish(ctx, attempt, out)
	return attempt, nil
}

// ListAbandoned returns attempts whose order was left unpaid for longer than olderThan.
func (s *Service) ListAbandoned(ctx context.Context, olderThan time.Duration, limit int) ([]models.CheckoutAttempt, error) {
	if s.repo == nil {
		return []models.CheckoutAttempt{}, nil
	}
	rows, err := s.repo.ListAbandoned(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list abandoned checkouts")
	}
	return rows, nil
}

func (s *Service) lookupLocked(checkoutID, clientID string, id identity.Identity) (*attemptEntry, error) {
	entry, ok := s.attempts[checkoutID]
	if !ok || entry.attempt.ClientID != clientID || entry.attempt.Identity.UserID != id.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	return entry, nil
}

func (s *Service) sweepLocked(now time.Time) {
	for id, entry := range s.attempts {
		if !entry.running && now.After(entry.expires) {
			delete(s.attempts, id)
		}
	}
}

func (s *Service) persist(ctx context.Context, a Attempt) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(context.WithoutCancel(ctx), a); err != nil {
		s.logg.Error(s.logg.WithCheckoutID(ctx, a.ID), "failed to record checkout attempt", err)
	}
}

func (s *Service) publish(ctx context.Context, a Attempt, out Outcome) {
	evt := NewEvent(a, out, s.now())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"checkout_id": a.ID, "event_type": evt.Type, "error": err.Error()}), "failed to publish checkout event")
	}
}
