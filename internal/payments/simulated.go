package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// Canonical test cards understood by both gateways.
const (
	CardVisaSuccess       = "4242424242424242"
	CardMastercardSuccess = "5555555555554444"
	CardGenericDecline    = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
	CardExpired           = "4000000000000069"
	CardIncorrectCVC      = "4000000000000127"
)

var simulatedApprovals = map[string]bool{
	CardVisaSuccess:       true,
	CardMastercardSuccess: true,
}

var simulatedDeclines = map[string]string{
	CardGenericDecline:    ReasonCardDeclined,
	CardInsufficientFunds: ReasonInsufficientFunds,
	CardExpired:           ReasonExpiredCard,
	CardIncorrectCVC:      ReasonIncorrectCVC,
}

type simulatedIntent struct {
	intent        Intent
	userID        string
	paymentID     string
	transactionID string
	voided        bool
	expires       time.Time
}

// simulatedIntentTTL bounds how long an untouched intent is remembered. It outlives a
// checkout attempt so a late confirm retry still reads as already confirmed.
const simulatedIntentTTL = time.Hour

// SimulatedGateway answers deterministically for the canonical cards and declines everything else.
// It stands in when the live processor is unreachable.
type SimulatedGateway struct {
	latency time.Duration

	mu      sync.Mutex
	intents map[string]*simulatedIntent
	now     func() time.Time
}

func NewSimulatedGateway(latency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{latency: latency, intents: map[string]*simulatedIntent{}, now: time.Now}
}

func (g *SimulatedGateway) Kind() enums.GatewayKind { return enums.GatewayKindSimulated }

func (g *SimulatedGateway) CreateIntent(ctx context.Context, amountCents int64, meta Metadata) (Intent, error) {
	if err := g.wait(ctx); err != nil {
		return Intent{}, err
	}
	if amountCents <= 0 {
		return Intent{}, gatewayError(backend.KindValidation, "amount must be positive")
	}
	if meta.OrderID == "" {
		return Intent{}, gatewayError(backend.KindValidation, "order id is required")
	}
	id := "sim_pi_" + uuid.NewString()
	intent := Intent{
		IntentID:     id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		AmountCents:  amountCents,
		Currency:     meta.Currency,
		Status:       enums.IntentStatusRequiresAction,
	}
	g.mu.Lock()
	now := g.now()
	g.sweepLocked(now)
	g.intents[id] = &simulatedIntent{intent: intent, userID: meta.UserID, expires: now.Add(simulatedIntentTTL)}
	g.mu.Unlock()
	return intent, nil
}

func (g *SimulatedGateway) Authorize(ctx context.Context, intent Intent, card Card) AuthorizationResult {
	if err := g.wait(ctx); err != nil {
		return NetworkError(err.Error())
	}
	number := card.Normalized().Number

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.liveLocked(intent.IntentID)
	if !ok || rec.intent.ClientSecret != intent.ClientSecret {
		return Declined(ReasonInvalidClientSecret)
	}
	if !simulatedApprovals[number] {
		rec.intent.Status = enums.IntentStatusFailed
		if reason, known := simulatedDeclines[number]; known {
			return Declined(reason)
		}
		return Declined(ReasonCardDeclined)
	}
	rec.paymentID = "sim_pay_" + uuid.NewString()
	rec.intent.Status = enums.IntentStatusSucceeded
	rec.voided = false
	return Authorized(rec.paymentID)
}

func (g *SimulatedGateway) Confirm(ctx context.Context, req ConfirmRequest) (Transaction, error) {
	if err := g.wait(ctx); err != nil {
		return Transaction{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.liveLocked(req.IntentID)
	if !ok {
		return Transaction{}, gatewayError(backend.KindIntentNotFound, "unknown payment intent")
	}
	if rec.transactionID != "" {
		return Transaction{}, gatewayError(backend.KindAlreadyConfirmed, "payment already confirmed")
	}
	if rec.paymentID == "" || rec.voided || rec.intent.Status != enums.IntentStatusSucceeded {
		return Transaction{}, gatewayError(backend.KindValidation, "payment intent is not authorized")
	}
	if req.UserID != "" && rec.userID != "" && req.UserID != rec.userID {
		return Transaction{}, gatewayError(backend.KindValidation, "payment intent belongs to another user")
	}
	rec.transactionID = "sim_txn_" + uuid.NewString()
	return Transaction{
		TransactionID: rec.transactionID,
		IntentID:      req.IntentID,
		AmountCents:   rec.intent.AmountCents,
		Status:        enums.TransactionStatusCompleted,
	}, nil
}

// Void drops an authorization that will not be confirmed.
func (g *SimulatedGateway) Void(ctx context.Context, providerPaymentID string) error {
	if providerPaymentID == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, rec := range g.intents {
		if rec.paymentID == providerPaymentID && rec.transactionID == "" {
			rec.voided = true
			rec.expires = g.now().Add(simulatedIntentTTL)
		}
	}
	return nil
}

// liveLocked returns an unexpired record and extends its lifetime.
func (g *SimulatedGateway) liveLocked(intentID string) (*simulatedIntent, bool) {
	rec, ok := g.intents[intentID]
	if !ok {
		return nil, false
	}
	now := g.now()
	if now.After(rec.expires) {
		delete(g.intents, intentID)
		return nil, false
	}
	rec.expires = now.Add(simulatedIntentTTL)
	return rec, true
}

func (g *SimulatedGateway) sweepLocked(now time.Time) {
	for id, rec := range g.intents {
		if now.After(rec.expires) {
			delete(g.intents, id)
		}
	}
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
