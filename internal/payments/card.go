package payments

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

var cardValidate = newCardValidator()

func newCardValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Card holds the buyer-entered details. Token is a processor nonce produced client side, when one exists.
type Card struct {
	Number   string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpMonth int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear  int    `json:"exp_year" validate:"required,min=2000,max=2100"`
	CVC      string `json:"cvc" validate:"required,numeric,min=3,max=4"`
	Token    string `json:"token,omitempty"`
}

// Normalized strips the separators buyers type into card numbers.
func (c Card) Normalized() Card {
	c.Number = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(c.Number))
	c.CVC = strings.TrimSpace(c.CVC)
	c.Token = strings.TrimSpace(c.Token)
	return c
}

// Validate is a format check only. It never contacts a processor.
func (c Card) Validate() error {
	normalized := c.Normalized()
	err := cardValidate.Struct(normalized)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid card details")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid card details").WithDetails(fields)
}

// Last4 is safe to log and to show back to the buyer.
func (c Card) Last4() string {
	n := c.Normalized().Number
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}
