package types

// SuccessEnvelope wraps every 2xx body served to the storefront.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is shared by this service's own error bodies and the backend's,
// which the backend client decodes with the same shape.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Failed reports whether a decoded body carried an error code.
func (e ErrorEnvelope) Failed() bool {
	return e.Error.Code != ""
}
