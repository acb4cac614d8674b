package backend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/farmgate-checkout/pkg/types"
)

const paymentsPrefix = "/payments/"

// codeKinds lets an explicit backend error code override the status-based guess.
var codeKinds = map[string]ErrorKind{
	"VALIDATION_ERROR": KindValidation,
	"UNAUTHORIZED":     KindAuth,
	"FORBIDDEN":        KindAuth,
}

// paymentCodeKinds only apply to the payment endpoints.
var paymentCodeKinds = map[string]ErrorKind{
	"AMOUNT_MISMATCH":   KindAmountMismatch,
	"ALREADY_CONFIRMED": KindAlreadyConfirmed,
	"INTENT_NOT_FOUND":  KindIntentNotFound,
}

func isPaymentPath(path string) bool {
	return strings.HasPrefix(path, paymentsPrefix)
}

// kindForStatus guesses from the status alone. 404, 409 and 422 carry intent
// semantics on the payment endpoints and are plain validation failures elsewhere.
func kindForStatus(status int, payment bool) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case payment && status == http.StatusNotFound:
		return KindIntentNotFound
	case payment && status == http.StatusConflict:
		return KindAlreadyConfirmed
	case payment && status == http.StatusUnprocessableEntity:
		return KindAmountMismatch
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

func codeKind(code string, payment bool) (ErrorKind, bool) {
	code = strings.ToUpper(code)
	if kind, ok := codeKinds[code]; ok {
		return kind, true
	}
	if payment {
		kind, ok := paymentCodeKinds[code]
		return kind, ok
	}
	return "", false
}

// classify turns a non-2xx answer from path into an Error. 401/403 always win over any body code.
func classify(path string, status int, body []byte) *Error {
	payment := isPaymentPath(path)
	out := &Error{Kind: kindForStatus(status, payment), Status: status}

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Failed() {
		out.Code = envelope.Error.Code
		out.Detail = envelope.Error.Message
		if out.Kind != KindAuth {
			if kind, ok := codeKind(envelope.Error.Code, payment); ok {
				out.Kind = kind
			}
		}
		return out
	}

	var flat struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		out.Detail = firstNonEmpty(flat.Message, flat.Error)
	}
	if out.Detail == "" {
		out.Detail = http.StatusText(status)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
