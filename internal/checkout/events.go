package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/instance"
)

const (
	EventCheckoutSucceeded = string(enums.EventCheckoutSucceeded)
	EventCheckoutFailed    = string(enums.EventCheckoutFailed)
	EventCheckoutAbandoned = string(enums.EventCheckoutAbandoned)

	eventVersion          = 1
	defaultPublishTimeout = 5 * time.Second
)

// Event is the payload published when an attempt reaches an outcome.
type Event struct {
	Version       int             `json:"version"`
	EventID       string          `json:"eventId"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CheckoutID    string          `json:"checkoutId"`
	UserID        string          `json:"userId"`
	Gateway       string          `json:"gateway"`
	State         enums.SagaState `json:"state"`
	FailureKind   FailureKind     `json:"failureKind,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	OrderNumber   string          `json:"orderNumber,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	AmountCents   int64           `json:"amountCents"`
	Currency      string          `json:"currency"`
}

// NewEvent describes the attempt's outcome.
func NewEvent(a Attempt, out Outcome, now time.Time) Event {
	evt := Event{
		Version:     eventVersion,
		EventID:     uuid.NewString(),
		OccurredAt:  now.UTC(),
		CheckoutID:  a.ID,
		UserID:      a.Identity.UserID,
		Gateway:     string(a.Gateway),
		State:       out.State,
		FailureKind: out.Kind,
		Reason:      out.Reason,
		OrderID:     a.OrderID,
		OrderNumber: a.OrderNumber,
		AmountCents: a.AmountCents,
		Currency:    a.Currency,
	}
	switch out.State {
	case enums.SagaStateSucceeded:
		evt.Type = EventCheckoutSucceeded
	case enums.SagaStateAbandoned:
		evt.Type = EventCheckoutAbandoned
	default:
		evt.Type = EventCheckoutFailed
	}
	if a.Transaction != nil {
		evt.TransactionID = a.Transaction.TransactionID
	}
	return evt
}

// Publisher emits checkout events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NoopPublisher drops events; used when no topic is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubPublisher sends events to a Google Pub/Sub topic.
type PubSubPublisher struct {
	topic   topicPublisher
	timeout time.Duration
}

func NewPubSubPublisher(p *gcppubsub.Publisher) (*PubSubPublisher, error) {
	if p == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubPublisher{topic: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":    evt.EventID,
			"event_type":  evt.Type,
			"checkout_id": evt.CheckoutID,
			"state":       string(evt.State),
			"instance_id": instance.GetID(),
			"occurred_at": evt.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.topic.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
