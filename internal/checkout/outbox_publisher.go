package checkout

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxPublisher queues events in outbox_events; cmd/outbox-publisher forwards them to Pub/Sub.
type OutboxPublisher struct {
	db     txRunner
	outbox outboxEmitter
}

func NewOutboxPublisher(db txRunner, emitter outboxEmitter) (*OutboxPublisher, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxPublisher{db: db, outbox: emitter}, nil
}

func (p *OutboxPublisher) Publish(ctx context.Context, evt Event) error {
	eventType, err := enums.ParseOutboxEventType(evt.Type)
	if err != nil {
		return err
	}
	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		return p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventID:       evt.EventID,
			EventType:     eventType,
			AggregateType: enums.AggregateCheckoutAttempt,
			AggregateID:   evt.CheckoutID,
			Actor:         &outbox.ActorRef{UserID: evt.UserID},
			Data:          evt,
			Version:       evt.Version,
			OccurredAt:    evt.OccurredAt,
		})
	})
}
