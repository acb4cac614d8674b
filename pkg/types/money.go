package types

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents) with its ISO currency.
type Money struct {
	Cents    int64
	Currency string
}

// NewMoney builds a Money value, defaulting the currency to USD.
func NewMoney(cents int64, currency string) Money {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return Money{Cents: cents, Currency: currency}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount as "12.50 USD".
func (m Money) String() string {
	return m.Decimal().StringFixed(2) + " " + m.Currency
}

// ParseMoney reads a major-unit string such as "12.5" into cents, rounding half away from zero.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, err
	}
	return NewMoney(d.Shift(2).Round(0).IntPart(), currency), nil
}

type moneyJSON struct {
	Cents    int64  `json:"cents"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON emits both minor units and a display amount.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Cents:    m.Cents,
		Amount:   m.Decimal().StringFixed(2),
		Currency: m.Currency,
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON; cents win over amount.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Cents == 0 && raw.Amount != "" {
		parsed, err := ParseMoney(raw.Amount, raw.Currency)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	*m = NewMoney(raw.Cents, raw.Currency)
	return nil
}
