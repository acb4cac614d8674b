package enums

import "fmt"

// SagaState is a node of the checkout state machine.
type SagaState string

const (
	SagaStateIdle                  SagaState = "idle"
	SagaStateCreatingOrder         SagaState = "creating_order"
	SagaStateCreatingIntent        SagaState = "creating_intent"
	SagaStateAwaitingAuthorization SagaState = "awaiting_authorization"
	SagaStateConfirming            SagaState = "confirming"
	SagaStateSucceeded             SagaState = "succeeded"
	SagaStateOrderFailed           SagaState = "order_failed"
	SagaStateIntentFailed          SagaState = "intent_failed"
	SagaStateAuthorizationFailed   SagaState = "authorization_failed"
	SagaStateConfirmationFailed    SagaState = "confirmation_failed"
	SagaStateSessionExpired        SagaState = "session_expired"
	SagaStateAbandoned             SagaState = "abandoned"
)

var validSagaStates = []SagaState{
	SagaStateIdle,
	SagaStateCreatingOrder,
	SagaStateCreatingIntent,
	SagaStateAwaitingAuthorization,
	SagaStateConfirming,
	SagaStateSucceeded,
	SagaStateOrderFailed,
	SagaStateIntentFailed,
	SagaStateAuthorizationFailed,
	SagaStateConfirmationFailed,
	SagaStateSessionExpired,
	SagaStateAbandoned,
}

// String implements fmt.Stringer.
func (s SagaState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SagaState.
func (s SagaState) IsValid() bool {
	for _, candidate := range validSagaStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a saga run ends in this state.
func (s SagaState) IsTerminal() bool {
	switch s {
	case SagaStateSucceeded,
		SagaStateOrderFailed,
		SagaStateIntentFailed,
		SagaStateAuthorizationFailed,
		SagaStateConfirmationFailed,
		SagaStateSessionExpired,
		SagaStateAbandoned:
		return true
	}
	return false
}

// IsInFlight reports whether the saga is waiting on a network step.
func (s SagaState) IsInFlight() bool {
	switch s {
	case SagaStateCreatingOrder,
		SagaStateCreatingIntent,
		SagaStateAwaitingAuthorization,
		SagaStateConfirming:
		return true
	}
	return false
}

// ParseSagaState converts raw input into a SagaState.
func ParseSagaState(value string) (SagaState, error) {
	for _, candidate := range validSagaStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid saga state %q", value)
}
