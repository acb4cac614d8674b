package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/identity"
	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// FailureKind is the single classification every failed outcome resolves to.
type FailureKind string

const (
	FailureValidation          FailureKind = "validation"
	FailureAuthentication      FailureKind = "authentication"
	FailureBusinessRejection   FailureKind = "business_rejection"
	FailureTransient           FailureKind = "transient"
	FailureServerInconsistency FailureKind = "server_inconsistency"
)

// Attempt is one checkout attempt. It owns at most one order and one payment intent.
type Attempt struct {
	ID                string                `json:"checkout_id"`
	ClientID          string                `json:"-"`
	Identity          identity.Identity     `json:"-"`
	IdempotencyKey    string                `json:"idempotency_key"`
	Gateway           enums.GatewayKind     `json:"gateway"`
	State             enums.SagaState       `json:"state"`
	OrderID           string                `json:"order_id,omitempty"`
	OrderNumber       string                `json:"order_number,omitempty"`
	OrderStatus       enums.OrderStatus     `json:"order_status,omitempty"`
	AmountCents       int64                 `json:"amount_cents"`
	Currency          string                `json:"currency"`
	Intent            *payments.Intent      `json:"intent,omitempty"`
	ProviderPaymentID string                `json:"-"`
	Transaction       *payments.Transaction `json:"transaction,omitempty"`
	Outcome           *Outcome              `json:"outcome,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Outcome is what the buyer is shown after a submission.
type Outcome struct {
	State    enums.SagaState `json:"state"`
	Kind     FailureKind     `json:"kind,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message"`
	Details  any             `json:"details,omitempty"`
	Blocked  bool            `json:"blocked,omitempty"` // stopped before any transition
	LogoutAt *time.Time      `json:"logout_at,omitempty"`
}

// Succeeded reports a paid attempt.
func (o Outcome) Succeeded() bool {
	return o.State == enums.SagaStateSucceeded
}

// resumePoint is where a submission starts for an attempt in its current state.
func (a Attempt) resumePoint() (enums.SagaState, error) {
	switch a.State {
	case enums.SagaStateIdle, enums.SagaStateOrderFailed:
		return enums.SagaStateIdle, nil
	case enums.SagaStateIntentFailed:
		if a.OrderID == "" {
			return enums.SagaStateIdle, nil
		}
		return enums.SagaStateCreatingIntent, nil
	case enums.SagaStateAuthorizationFailed:
		if a.Intent == nil {
			return enums.SagaStateCreatingIntent, nil
		}
		return enums.SagaStateAwaitingAuthorization, nil
	case enums.SagaStateConfirmationFailed:
		if a.Outcome != nil && a.Outcome.Kind == FailureTransient && a.ProviderPaymentID != "" {
			return enums.SagaStateConfirming, nil
		}
		return "", fmt.Errorf("confirmation for this checkout cannot be retried")
	default:
		return "", fmt.Errorf("checkout is %s", a.State)
	}
}

func (a Attempt) needsCard(from enums.SagaState) bool {
	return from != enums.SagaStateConfirming
}

func messageFor(kind FailureKind, state enums.SagaState, reason string, a Attempt) string {
	switch kind {
	case FailureValidation:
		return "Please check your details: " + reason
	case FailureAuthentication:
		return "Your session has expired. Please log in again."
	case FailureBusinessRejection:
		if state == enums.SagaStateAuthorizationFailed {
			return fmt.Sprintf("Your card was declined (%s). Try a different card.", humanize(reason))
		}
		return reason
	case FailureServerInconsistency:
		if a.OrderNumber != "" {
			return fmt.Sprintf("We could not confirm your payment. Please contact support with order %s before trying again.", a.OrderNumber)
		}
		return "We could not confirm your payment. Please contact support before trying again."
	case FailureTransient:
		return "We could not reach the payment service. Please try again."
	}
	switch state {
	case enums.SagaStateSucceeded:
		return fmt.Sprintf("Order %s placed.", a.OrderNumber)
	case enums.SagaStateAbandoned:
		return "Checkout was cancelled."
	}
	return ""
}

func humanize(reason string) string {
	return strings.ReplaceAll(reason, "_", " ")
}
