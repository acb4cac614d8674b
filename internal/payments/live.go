package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/square"
)

// Square sandbox nonces that behave like the canonical test cards.
const (
	sandboxNonceOK              = "cnon:card-nonce-ok"
	sandboxNonceDeclined        = "cnon:card-nonce-declined"
	sandboxNonceRejectedCVV     = "cnon:card-nonce-rejected-cvv"
	sandboxNonceRejectedExpired = "cnon:card-nonce-rejected-expiration"
)

var sandboxNonces = map[string]string{
	CardVisaSuccess:       sandboxNonceOK,
	CardMastercardSuccess: sandboxNonceOK,
	CardGenericDecline:    sandboxNonceDeclined,
	CardExpired:           sandboxNonceRejectedExpired,
	CardIncorrectCVC:      sandboxNonceRejectedCVV,
}

type intentBackend interface {
	CreatePaymentIntent(ctx context.Context, req backend.CreateIntentRequest) backend.Result[backend.PaymentIntent]
	ConfirmPayment(ctx context.Context, req backend.ConfirmPaymentRequest) backend.Result[backend.Transaction]
}

type cardProcessor interface {
	IsSandbox() bool
	NewIdempotencyKey(prefix string) string
	AuthorizePayment(ctx context.Context, params square.PaymentAuthorizeParams) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) error
}

// LiveGateway creates and confirms intents through the marketplace backend and authorizes cards with Square.
type LiveGateway struct {
	backend   intentBackend
	processor cardProcessor
	currency  string
	logg      *logger.Logger
}

func NewLiveGateway(backendClient intentBackend, processor cardProcessor, currency string, logg *logger.Logger) (*LiveGateway, error) {
	if backendClient == nil {
		return nil, fmt.Errorf("backend client required")
	}
	if processor == nil {
		return nil, fmt.Errorf("card processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LiveGateway{
		backend:   backendClient,
		processor: processor,
		currency:  strings.ToUpper(strings.TrimSpace(currency)),
		logg:      logg,
	}, nil
}

func (g *LiveGateway) Kind() enums.GatewayKind { return enums.GatewayKindLive }

func (g *LiveGateway) CreateIntent(ctx context.Context, amountCents int64, meta Metadata) (Intent, error) {
	currency := meta.Currency
	if currency == "" {
		currency = g.currency
	}
	created, err := g.backend.CreatePaymentIntent(ctx, backend.CreateIntentRequest{
		UserID:      meta.UserID,
		OrderID:     meta.OrderID,
		AmountCents: amountCents,
		Currency:    currency,
	}).Unpack()
	if err != nil {
		return Intent{}, err
	}
	if created.AmountCents != 0 && created.AmountCents != amountCents {
		return Intent{}, gatewayError(backend.KindAmountMismatch,
			fmt.Sprintf("intent amount %d does not match order total %d", created.AmountCents, amountCents))
	}
	status := enums.IntentStatus(strings.ToLower(created.Status))
	if status == "" {
		status = enums.IntentStatusRequiresAction
	}
	return Intent{
		IntentID:     created.IntentID,
		ClientSecret: created.ClientSecret,
		AmountCents:  amountCents,
		Currency:     currency,
		Status:       status,
	}, nil
}

func (g *LiveGateway) Authorize(ctx context.Context, intent Intent, card Card) AuthorizationResult {
	card = card.Normalized()
	source := card.Token
	if source == "" {
		if !g.processor.IsSandbox() {
			return Declined(ReasonTokenizationRequired)
		}
		source = sandboxNonce(card.Number)
	}

	payment, err := g.processor.AuthorizePayment(ctx, square.PaymentAuthorizeParams{
		AmountCents:    intent.AmountCents,
		Currency:       intent.Currency,
		SourceID:       source,
		IdempotencyKey: g.processor.NewIdempotencyKey("fg-auth"),
		ReferenceID:    intent.IntentID,
		Note:           "card ending " + card.Last4(),
	})
	if err != nil {
		return g.authorizationFailure(ctx, err)
	}

	switch strings.ToUpper(stringValue(payment.GetStatus())) {
	case "APPROVED", "COMPLETED":
		return Authorized(stringValue(payment.GetID()))
	default:
		return Declined(ReasonCardDeclined)
	}
}

func (g *LiveGateway) authorizationFailure(ctx context.Context, err error) AuthorizationResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NetworkError(err.Error())
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return NetworkError(ReasonProcessorUnavailable)
	}
	switch typed.Code() {
	case pkgerrors.CodeDeclined:
		if reason := pkgerrors.DeclineReason(err); reason != "" {
			return Declined(reason)
		}
		return Declined(ReasonCardDeclined)
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		g.logg.Error(ctx, "square rejected the configured credentials", err)
		return NetworkError(ReasonProcessorMisconfigured)
	default:
		g.logg.Warn(g.logg.WithField(ctx, "square_code", string(typed.Code())), "square authorization failed")
		return NetworkError(ReasonProcessorUnavailable)
	}
}

// Confirm records the transaction with the backend, then captures the Square authorization.
func (g *LiveGateway) Confirm(ctx context.Context, req ConfirmRequest) (Transaction, error) {
	recorded, err := g.backend.ConfirmPayment(ctx, backend.ConfirmPaymentRequest{
		IntentID:          req.IntentID,
		UserID:            req.UserID,
		ProviderPaymentID: req.ProviderPaymentID,
	}).Unpack()
	if err != nil {
		return Transaction{}, err
	}
	status, err := enums.ParseTransactionStatus(recorded.Status)
	if err != nil {
		return Transaction{}, gatewayError(backend.KindServer, fmt.Sprintf("unexpected transaction status %q", recorded.Status))
	}
	tx := Transaction{
		TransactionID: recorded.TransactionID,
		IntentID:      req.IntentID,
		AmountCents:   recorded.AmountCents,
		Status:        status,
	}
	if status != enums.TransactionStatusCompleted || req.ProviderPaymentID == "" {
		return tx, nil
	}
	if _, err := g.processor.CompletePayment(ctx, req.ProviderPaymentID); err != nil {
		g.logg.Error(g.logg.WithField(ctx, "transaction_id", tx.TransactionID), "capture failed after backend confirmation", err)
		return Transaction{}, &backend.Error{Kind: backend.KindServer, Detail: "payment recorded but capture failed"}
	}
	return tx, nil
}

// Void cancels a Square authorization that will not be captured.
func (g *LiveGateway) Void(ctx context.Context, providerPaymentID string) error {
	if providerPaymentID == "" {
		return nil
	}
	return g.processor.CancelPayment(ctx, providerPaymentID)
}

func sandboxNonce(number string) string {
	if nonce, ok := sandboxNonces[number]; ok {
		return nonce
	}
	return sandboxNonceDeclined
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
