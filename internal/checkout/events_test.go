package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox"
)

type fakeTopic struct {
	msgs []*gcppubsub.Message
	err  error
}

func (f *fakeTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.msgs = append(f.msgs, msg)
	return fakeResult{err: f.err}
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return "msg-1", r.err
}

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func succeededAttempt() (Attempt, Outcome) {
	a := newAttempt(payments.NewSimulatedGateway(0))
	a.State = enums.SagaStateSucceeded
	a.OrderID = "ord_1"
	a.OrderNumber = "FG-1001"
	a.AmountCents = 1250
	a.Transaction = &payments.Transaction{TransactionID: "txn_1"}
	return a, Outcome{State: enums.SagaStateSucceeded}
}

func TestNewEventTypes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, out := succeededAttempt()

	evt := NewEvent(a, out, now)
	require.Equal(t, EventCheckoutSucceeded, evt.Type)
	require.Equal(t, "txn_1", evt.TransactionID)
	require.Equal(t, "user42", evt.UserID)
	require.Equal(t, now, evt.OccurredAt)
	require.NotEmpty(t, evt.EventID)

	failed := NewEvent(a, Outcome{State: enums.SagaStateAuthorizationFailed, Kind: FailureBusinessRejection, Reason: "card_declined"}, now)
	require.Equal(t, EventCheckoutFailed, failed.Type)
	require.Equal(t, FailureBusinessRejection, failed.FailureKind)

	abandoned := NewEvent(a, Outcome{State: enums.SagaStateAbandoned}, now)
	require.Equal(t, EventCheckoutAbandoned, abandoned.Type)
}

func TestPubSubPublisherAttributes(t *testing.T) {
	topic := &fakeTopic{}
	pub := &PubSubPublisher{topic: topic, timeout: time.Second}
	a, out := succeededAttempt()
	evt := NewEvent(a, out, time.Now())

	require.NoError(t, pub.Publish(context.Background(), evt))
	require.Len(t, topic.msgs, 1)
	attrs := topic.msgs[0].Attributes
	require.Equal(t, evt.EventID, attrs["event_id"])
	require.Equal(t, EventCheckoutSucceeded, attrs["event_type"])
	require.Equal(t, "chk_1", attrs["checkout_id"])

	var decoded Event
	require.NoError(t, json.Unmarshal(topic.msgs[0].Data, &decoded))
	require.Equal(t, evt.EventID, decoded.EventID)
}

func TestPubSubPublisherSurfacesErrors(t *testing.T) {
	pub := &PubSubPublisher{topic: &fakeTopic{err: errors.New("unavailable")}, timeout: time.Second}
	a, out := succeededAttempt()
	require.Error(t, pub.Publish(context.Background(), NewEvent(a, out, time.Now())))
}

func TestOutboxPublisherQueuesEvent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))
	pub, err := NewOutboxPublisher(gormTx{db: db}, outbox.NewService(outbox.NewRepository(db), testLogger()))
	require.NoError(t, err)

	a, out := succeededAttempt()
	evt := NewEvent(a, out, time.Now())
	require.NoError(t, pub.Publish(context.Background(), evt))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "id = ?", evt.EventID).Error)
	require.Equal(t, enums.EventCheckoutSucceeded, row.EventType)
	require.Equal(t, enums.AggregateCheckoutAttempt, row.AggregateType)
	require.Equal(t, "chk_1", row.AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	var data Event
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "FG-1001", data.OrderNumber)
}

func TestOutboxPublisherRejectsUnknownType(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))
	pub, err := NewOutboxPublisher(gormTx{db: db}, outbox.NewService(outbox.NewRepository(db), nil))
	require.NoError(t, err)
	require.Error(t, pub.Publish(context.Background(), Event{Type: "checkout.unknown", CheckoutID: "chk_1"}))
}
