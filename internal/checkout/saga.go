package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/internal/stock"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/types"
)

type orderCreator interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) backend.Result[backend.CreatedOrder]
}

type cartVerifier interface {
	VerifyCart(ctx context.Context, items []cart.Item) ([]stock.Rejection, error)
}

// CartReader is the saga's view of the buyer's cart: read-only until success clears it.
type CartReader interface {
	Snapshot(ctx context.Context) cart.Cart
	ClearIdentity(ctx context.Context, identityKey string)
}

type sagaMetrics interface {
	IncOutcome(state, kind string)
	ObserveStep(step, gateway string, duration time.Duration)
}

// SubmitInput is what the buyer supplies with a submission.
type SubmitInput struct {
	Identity identity.Identity
	Address  types.Address
	Card     payments.Card
}

// SagaConfig holds the pricing inputs.
type SagaConfig struct {
	ShippingFeeCents int64
	Currency         string
}

// Saga sequences order creation, intent creation, authorization and confirmation.
// Steps run strictly one after another; every failure resolves to one FailureKind.
type Saga struct {
	orders  orderCreator
	stock   cartVerifier
	guard   identity.SessionGuard
	metrics sagaMetrics
	cfg     SagaConfig
	logg    *logger.Logger
	now     func() time.Time
}

func NewSaga(orders orderCreator, stockVerifier cartVerifier, guard identity.SessionGuard, metrics sagaMetrics, cfg SagaConfig, logg *logger.Logger) (*Saga, error) {
	if orders == nil {
		return nil, fmt.Errorf("order creator required")
	}
	if stockVerifier == nil {
		return nil, fmt.Errorf("stock verifier required")
	}
	if guard == nil {
		return nil, fmt.Errorf("session guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ShippingFeeCents < 0 {
		return nil, fmt.Errorf("shipping fee must not be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Saga{
		orders:  orders,
		stock:   stockVerifier,
		guard:   guard,
		metrics: metrics,
		cfg:     cfg,
		logg:    logg,
		now:     time.Now,
	}, nil
}

type noopMetrics struct{}

func (noopMetrics) IncOutcome(string, string) {}
func (noopMetrics) ObserveStep(string, string, time.Duration) {}

// Recorder observes every state transition of a running attempt.
type Recorder func(ctx context.Context, a Attempt)

type run struct {
	saga     *Saga
	attempt  Attempt
	gateway  payments.Gateway
	cart     CartReader
	in       SubmitInput
	record   Recorder
	// verified is the cart that passed the stock re-check; it is what gets ordered.
	verified cart.Cart
}

// Run drives the attempt from its resume point to exactly one outcome. The returned attempt carries it.
func (s *Saga) Run(ctx context.Context, attempt Attempt, gateway payments.Gateway, cartReader CartReader, in SubmitInput, record Recorder) (Attempt, Outcome) {
	r := &run{saga: s, attempt: attempt, gateway: gateway, cart: cartReader, in: in, record: record}
	ctx = s.logg.WithCheckoutID(ctx, attempt.ID)

	from, err := attempt.resumePoint()
	if err != nil {
		return r.block(FailureValidation, err.Error(), nil)
	}
	if attempt.Gateway != "" && gateway.Kind() != attempt.Gateway {
		return r.block(FailureValidation, "payment gateway changed during checkout", nil)
	}
	if out, ok := r.preconditions(ctx, from); !ok {
		return r.attempt, out
	}
	out := r.drive(ctx, from)
	s.metrics.IncOutcome(string(out.State), string(out.Kind))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"state":        string(out.State),
		"failure_kind": string(out.Kind),
		"reason":       out.Reason,
		"gateway":      string(gateway.Kind()),
	}), "checkout saga finished")
	return r.attempt, out
}

func (r *run) preconditions(ctx context.Context, from enums.SagaState) (Outcome, bool) {
	id := r.in.Identity
	if !id.CanBuy() {
		_, out := r.block(FailureValidation, "a buyer account is required to check out", nil)
		return out, false
	}
	if r.attempt.Identity.UserID != "" && id.UserID != r.attempt.Identity.UserID {
		_, out := r.block(FailureValidation, "checkout belongs to another account", nil)
		return out, false
	}
	if r.attempt.needsCard(from) {
		if err := r.in.Card.Validate(); err != nil {
			_, out := r.block(FailureValidation, "card details are incomplete", detailsOf(err))
			return out, false
		}
	}
	snapshot, ok := r.ownCart(ctx)
	if !ok {
		_, out := r.block(FailureValidation, "cart does not belong to this checkout", nil)
		return out, false
	}
	if from != enums.SagaStateIdle {
		if snapshot.Total(r.saga.cfg.ShippingFeeCents) != r.attempt.AmountCents {
			_, out := r.block(FailureBusinessRejection, "your cart changed after the order was created; start a new checkout", nil)
			return out, false
		}
		return Outcome{}, true
	}

	if snapshot.IsEmpty() {
		_, out := r.block(FailureValidation, "cart is empty", nil)
		return out, false
	}
	for _, item := range snapshot.Items {
		if item.ProductID == "" {
			_, out := r.block(FailureValidation, fmt.Sprintf("%s cannot be ordered; remove it and add it again from the listing", item.Name), nil)
			return out, false
		}
	}
	if missing := r.in.Address.Missing(); len(missing) > 0 {
		_, out := r.block(FailureValidation, "shipping address is missing "+strings.Join(missing, ", "), map[string]any{"missing": missing})
		return out, false
	}

	if err := r.saga.guard.Check(ctx, id); err != nil {
		return r.guardFailure(ctx, enums.SagaStateIdle, err), false
	}
	rejections, err := r.saga.stock.VerifyCart(ctx, snapshot.Items)
	if err != nil {
		if ctx.Err() != nil {
			return r.finish(ctx, enums.SagaStateAbandoned, "", "", nil), false
		}
		if identity.IsSessionExpired(err) {
			return r.finish(ctx, enums.SagaStateSessionExpired, FailureAuthentication, "stock_check_unauthorized", nil), false
		}
		_, out := r.block(FailureTransient, "stock could not be verified", nil)
		return out, false
	}
	if len(rejections) > 0 {
		msgs := make([]string, 0, len(rejections))
		for _, rej := range rejections {
			msgs = append(msgs, rej.Message())
		}
		_, out := r.block(FailureBusinessRejection, strings.Join(msgs, "; "), rejections)
		return out, false
	}
	r.verified = snapshot
	return Outcome{}, true
}

// ownCart reads the cart and confirms it belongs to the attempt's identity.
func (r *run) ownCart(ctx context.Context) (cart.Cart, bool) {
	snapshot := r.cart.Snapshot(ctx)
	return snapshot, snapshot.IdentityKey == r.attempt.Identity.Key()
}

func (r *run) drive(ctx context.Context, from enums.SagaState) Outcome {
	steps := []struct {
		state enums.SagaState
		fn    func(context.Context) (Outcome, bool)
	}{
		{enums.SagaStateCreatingOrder, r.createOrder},
		{enums.SagaStateCreatingIntent, r.createIntent},
		{enums.SagaStateAwaitingAuthorization, r.authorize},
		{enums.SagaStateConfirming, r.confirm},
	}
	r.attempt.Outcome = nil
	started := false
	for _, step := range steps {
		if !started {
			started = from == enums.SagaStateIdle || from == step.state
			if !started {
				continue
			}
		}
		if ctx.Err() != nil {
			return r.finish(ctx, enums.SagaStateAbandoned, "", "", nil)
		}
		if err := r.saga.guard.Check(ctx, r.in.Identity); err != nil {
			return r.guardFailure(ctx, step.state, err)
		}
		r.transition(ctx, step.state)
		begin := r.saga.now()
		out, done := step.fn(ctx)
		r.saga.metrics.ObserveStep(string(step.state), string(r.gateway.Kind()), r.saga.now().Sub(begin))
		if done {
			return out
		}
	}
	return r.succeed(ctx)
}

func (r *run) createOrder(ctx context.Context) (Outcome, bool) {
	snapshot := r.verified
	items := make([]backend.OrderItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, backend.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	created, err := r.saga.orders.CreateOrder(backend.WithAccessToken(ctx, r.in.Identity.AccessToken), backend.CreateOrderRequest{
		UserID:          r.in.Identity.UserID,
		Items:           items,
		ShippingAddress: r.in.Address.Normalized(),
		IdempotencyKey:  r.attempt.IdempotencyKey,
	}).Unpack()
	if err != nil {
		return r.stepFailure(ctx, enums.SagaStateOrderFailed, err), true
	}
	r.attempt.OrderID = created.OrderID
	r.attempt.OrderNumber = created.OrderNumber
	r.attempt.OrderStatus = enums.OrderStatusCreated
	r.attempt.AmountCents = snapshot.Total(r.saga.cfg.ShippingFeeCents)
	r.attempt.Currency = r.saga.cfg.Currency
	return Outcome{}, false
}

func (r *run) createIntent(ctx context.Context) (Outcome, bool) {
	intent, err := r.gateway.CreateIntent(backend.WithAccessToken(ctx, r.in.Identity.AccessToken), r.attempt.AmountCents, payments.Metadata{
		UserID:   r.in.Identity.UserID,
		OrderID:  r.attempt.OrderID,
		Currency: r.attempt.Currency,
	})
	if err != nil {
		return r.stepFailure(ctx, enums.SagaStateIntentFailed, err), true
	}
	r.attempt.Intent = &intent
	r.attempt.OrderStatus = enums.OrderStatusPaymentPending
	return Outcome{}, false
}

func (r *run) authorize(ctx context.Context) (Outcome, bool) {
	res := r.gateway.Authorize(ctx, *r.attempt.Intent, r.in.Card)
	switch res.Status {
	case payments.StatusAuthorized:
		r.attempt.ProviderPaymentID = res.ProviderPaymentID
		return Outcome{}, false
	case payments.StatusDeclined:
		return r.finish(ctx, enums.SagaStateAuthorizationFailed, FailureBusinessRejection, res.Reason, nil), true
	default:
		if ctx.Err() != nil {
			return r.finish(ctx, enums.SagaStateAbandoned, "", "", nil), true
		}
		return r.finish(ctx, enums.SagaStateAuthorizationFailed, FailureTransient, res.Reason, nil), true
	}
}

func (r *run) confirm(ctx context.Context) (Outcome, bool) {
	tx, err := r.gateway.Confirm(backend.WithAccessToken(ctx, r.in.Identity.AccessToken), payments.ConfirmRequest{
		IntentID:          r.attempt.Intent.IntentID,
		UserID:            r.in.Identity.UserID,
		ProviderPaymentID: r.attempt.ProviderPaymentID,
	})
	if err != nil {
		return r.stepFailure(ctx, enums.SagaStateConfirmationFailed, err), true
	}
	switch tx.Status {
	case enums.TransactionStatusCompleted:
		r.attempt.Transaction = &tx
		return Outcome{}, false
	case enums.TransactionStatusPending:
		return r.finish(ctx, enums.SagaStateConfirmationFailed, FailureTransient, "transaction_pending", nil), true
	default:
		return r.finish(ctx, enums.SagaStateConfirmationFailed, FailureServerInconsistency, "transaction_failed", nil), true
	}
}

// succeed is the only place the cart is cleared. The clear outlives a cancelled request.
func (r *run) succeed(ctx context.Context) Outcome {
	r.attempt.OrderStatus = enums.OrderStatusPaid
	r.cart.ClearIdentity(context.WithoutCancel(ctx), r.attempt.Identity.Key())
	return r.finish(ctx, enums.SagaStateSucceeded, "", "", map[string]any{
		"order_number":   r.attempt.OrderNumber,
		"transaction_id": r.attempt.Transaction.TransactionID,
		"amount":         types.NewMoney(r.attempt.AmountCents, r.attempt.Currency),
	})
}

func (r *run) guardFailure(ctx context.Context, at enums.SagaState, err error) Outcome {
	if identity.IsSessionExpired(err) {
		return r.finish(ctx, enums.SagaStateSessionExpired, FailureAuthentication, "session_expired", nil)
	}
	if at == enums.SagaStateIdle {
		_, out := r.block(FailureTransient, "session could not be verified", nil)
		return out
	}
	return r.finish(ctx, failedStateFor(at), FailureTransient, "session_check_failed", nil)
}

// stepFailure classifies an error from a network step.
func (r *run) stepFailure(ctx context.Context, failed enums.SagaState, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return r.finish(ctx, enums.SagaStateAbandoned, "", "", nil)
	}
	kind := backend.KindOf(err)
	switch kind {
	case backend.KindAuth:
		return r.finish(ctx, enums.SagaStateSessionExpired, FailureAuthentication, string(kind), nil)
	case backend.KindValidation:
		if failed == enums.SagaStateConfirmationFailed {
			return r.finish(ctx, failed, FailureServerInconsistency, string(kind), nil)
		}
		return r.finish(ctx, failed, FailureValidation, detailOr(err, string(kind)), nil)
	case backend.KindNetwork, backend.KindServer, "":
		if failed == enums.SagaStateConfirmationFailed && kind == backend.KindServer && r.attempt.ProviderPaymentID != "" {
			// A 5xx after the card was authorized may still have recorded the payment.
			return r.finish(ctx, failed, FailureServerInconsistency, string(kind), nil)
		}
		reason := string(kind)
		if reason == "" {
			reason = "unexpected_error"
		}
		return r.finish(ctx, failed, FailureTransient, reason, nil)
	default:
		return r.finish(ctx, failed, FailureServerInconsistency, string(kind), nil)
	}
}

func (r *run) transition(ctx context.Context, state enums.SagaState) {
	r.attempt.State = state
	r.attempt.UpdatedAt = r.saga.now()
	if r.record != nil {
		r.record(ctx, r.attempt)
	}
}

func (r *run) finish(ctx context.Context, state enums.SagaState, kind FailureKind, reason string, details any) Outcome {
	out := Outcome{
		State:   state,
		Kind:    kind,
		Reason:  reason,
		Details: details,
	}
	r.attempt.Outcome = &out
	out.Message = messageFor(kind, state, reason, r.attempt)
	if state == enums.SagaStateAbandoned && r.attempt.ProviderPaymentID != "" && r.attempt.Transaction == nil {
		r.voidAuthorization(ctx)
	}
	r.transition(ctx, state)
	return out
}

// block reports a precondition failure. The attempt keeps its state.
func (r *run) block(kind FailureKind, reason string, details any) (Attempt, Outcome) {
	out := Outcome{
		State:   r.attempt.State,
		Kind:    kind,
		Reason:  reason,
		Details: details,
		Blocked: true,
	}
	out.Message = messageFor(kind, r.attempt.State, reason, r.attempt)
	return r.attempt, out
}

func (r *run) voidAuthorization(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	if err := r.gateway.Void(detached, r.attempt.ProviderPaymentID); err != nil {
		r.saga.logg.Error(detached, "failed to void abandoned authorization", err)
		return
	}
	r.attempt.ProviderPaymentID = ""
}

func failedStateFor(step enums.SagaState) enums.SagaState {
	switch step {
	case enums.SagaStateCreatingOrder:
		return enums.SagaStateOrderFailed
	case enums.SagaStateCreatingIntent:
		return enums.SagaStateIntentFailed
	case enums.SagaStateAwaitingAuthorization:
		return enums.SagaStateAuthorizationFailed
	default:
		return enums.SagaStateConfirmationFailed
	}
}

func detailOr(err error, fallback string) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	return fallback
}

func detailsOf(err error) any {
	type detailer interface{ Details() any }
	var d detailer
	if errors.As(err, &d) {
		return d.Details()
	}
	return nil
}
