package payments

import (
	"context"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// AuthorizationStatus is the shape of an authorization answer.
type AuthorizationStatus string

const (
	StatusAuthorized   AuthorizationStatus = "authorized"
	StatusDeclined     AuthorizationStatus = "declined"
	StatusNetworkError AuthorizationStatus = "network_error"
)

// AuthorizationResult is Authorized, Declined(reason) or NetworkError. It is never an error value.
type AuthorizationResult struct {
	Status            AuthorizationStatus `json:"status"`
	Reason            string              `json:"reason,omitempty"`
	ProviderPaymentID string              `json:"provider_payment_id,omitempty"`
}

func Authorized(providerPaymentID string) AuthorizationResult {
	return AuthorizationResult{Status: StatusAuthorized, ProviderPaymentID: providerPaymentID}
}

func Declined(reason string) AuthorizationResult {
	if reason == "" {
		reason = ReasonCardDeclined
	}
	return AuthorizationResult{Status: StatusDeclined, Reason: reason}
}

func NetworkError(reason string) AuthorizationResult {
	return AuthorizationResult{Status: StatusNetworkError, Reason: reason}
}

func (r AuthorizationResult) IsAuthorized() bool { return r.Status == StatusAuthorized }
func (r AuthorizationResult) IsDeclined() bool { return r.Status == StatusDeclined }

const (
	ReasonCardDeclined           = "card_declined"
	ReasonInsufficientFunds      = "insufficient_funds"
	ReasonExpiredCard            = "expired_card"
	ReasonIncorrectCVC           = "incorrect_cvc"
	ReasonTokenizationRequired   = "tokenization_required"
	ReasonInvalidClientSecret    = "invalid_client_secret"
	ReasonProcessorUnavailable   = "processor_unavailable"
	ReasonProcessorMisconfigured = "processor_misconfigured"
)

// Metadata scopes a payment intent to its order.
type Metadata struct {
	UserID   string
	OrderID  string
	Currency string
}

// Intent is an amount to be authorized, fixed at creation.
type Intent struct {
	IntentID     string             `json:"intent_id"`
	ClientSecret string             `json:"-"`
	AmountCents  int64              `json:"amount_cents"`
	Currency     string             `json:"currency"`
	Status       enums.IntentStatus `json:"status"`
}

// ConfirmRequest asks the gateway to record an authorized intent as a transaction.
type ConfirmRequest struct {
	IntentID          string
	UserID            string
	ProviderPaymentID string
}

// Transaction is the terminal record of a paid attempt.
type Transaction struct {
	TransactionID string                  `json:"transaction_id"`
	IntentID      string                  `json:"intent_id"`
	AmountCents   int64                   `json:"amount_cents"`
	Status        enums.TransactionStatus `json:"status"`
}

// Gateway is implemented identically by the live and simulated processors.
// CreateIntent and Confirm fail with *backend.Error so callers classify both the same way.
type Gateway interface {
	Kind() enums.GatewayKind
	CreateIntent(ctx context.Context, amountCents int64, meta Metadata) (Intent, error)
	Authorize(ctx context.Context, intent Intent, card Card) AuthorizationResult
	Confirm(ctx context.Context, req ConfirmRequest) (Transaction, error)
	Void(ctx context.Context, providerPaymentID string) error
}

func gatewayError(kind backend.ErrorKind, detail string) *backend.Error {
	return &backend.Error{Kind: kind, Detail: detail}
}
