package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

const envelopeVersion = 1

// ActorRef names the buyer and device whose checkout produced the event.
type ActorRef struct {
	UserID   string `json:"userId"`
	ClientID string `json:"clientId,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. Data is the event body
// handed to subscribers; the rest lets the publisher route and dedupe.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType"`
	AggregateID string                `json:"aggregateId"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Actor       *ActorRef             `json:"actor,omitempty"`
	Data        json.RawMessage       `json:"data"`
}

// DecodeEnvelope parses a stored payload. Rows written before the envelope
// carried its own id fall back to rowID.
func DecodeEnvelope(raw []byte, rowID string) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		env.EventID = rowID
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env, errors.New("envelope has no data")
	}
	if env.Version == 0 {
		env.Version = envelopeVersion
	}
	return env, nil
}
