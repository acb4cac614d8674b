package square

import (
	"strings"
	"unicode/utf8"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

// Field limits enforced by the Payments API.
const (
	maxIdempotencyKeyLen = 45
	maxReferenceIDLen    = 40
	maxNoteLen           = 500
)

// PaymentAuthorizeParams describes a delayed-capture card payment for one
// checkout. ReferenceID carries the backend payment intent id so Square
// payments can be reconciled against orders.
type PaymentAuthorizeParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentAuthorizeParams) validate() error {
	missing := map[string]string{}
	if p.AmountCents <= 0 {
		missing["amount_cents"] = "must be greater than 0"
	}
	if strings.TrimSpace(p.SourceID) == "" {
		missing["source_id"] = "is required"
	}
	if strings.TrimSpace(p.LocationID) == "" {
		missing["location_id"] = "is required"
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid square authorization").WithDetails(missing)
	}
	return nil
}

// toSquareRequest never autocompletes; the charge is captured on confirmation.
func (p PaymentAuthorizeParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	autocomplete := false
	return &sq.CreatePaymentRequest{
		IdempotencyKey: clip(idempotencyKey, maxIdempotencyKeyLen),
		LocationID:     optionalString(p.LocationID, 0),
		SourceID:       p.SourceID,
		Autocomplete:   &autocomplete,
		AmountMoney:    money(p.AmountCents, p.Currency),
		Note:           optionalString(p.Note, maxNoteLen),
		ReferenceID:    optionalString(p.ReferenceID, maxReferenceIDLen),
	}
}

func optionalString(value string, limit int) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	value = clip(value, limit)
	return &value
}

// clip truncates to limit bytes without splitting a rune. A limit of 0 keeps the value.
func clip(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func money(amount int64, currency string) *sq.Money {
	if amount <= 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "USD"
	}
	c := sq.Currency(code)
	return &sq.Money{Amount: &amount, Currency: &c}
}
