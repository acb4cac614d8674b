package enums

import "fmt"

// OutboxAggregateType names the entity an outbox row describes.
type OutboxAggregateType string

const (
	AggregateCheckoutAttempt OutboxAggregateType = "checkout_attempt"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCheckoutAttempt,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the type attribute carried by every published checkout event.
type OutboxEventType string

const (
	EventCheckoutSucceeded OutboxEventType = "checkout.succeeded"
	EventCheckoutFailed    OutboxEventType = "checkout.failed"
	EventCheckoutAbandoned OutboxEventType = "checkout.abandoned"
)

var validEventTypes = []OutboxEventType{
	EventCheckoutSucceeded,
	EventCheckoutFailed,
	EventCheckoutAbandoned,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the value is a known DLQ reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
