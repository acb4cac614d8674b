package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmgate-checkout/internal/payments"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CheckoutAttempt{}))
	return db
}

func ledgerAttempt(id string, state enums.SagaState, orderStatus enums.OrderStatus, updated time.Time) Attempt {
	a := Attempt{
		ID:             id,
		ClientID:       "device-a",
		Identity:       buyer(),
		IdempotencyKey: "idem-" + id,
		Gateway:        enums.GatewayKindSimulated,
		State:          state,
		AmountCents:    1250,
		Currency:       "USD",
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
	if orderStatus != "" {
		a.OrderID = "ord-" + id
		a.OrderNumber = "FG-" + id
		a.OrderStatus = orderStatus
	}
	return a
}

func TestRepositorySaveUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	now := time.Now().UTC()

	attempt := ledgerAttempt("a1", enums.SagaStateIdle, "", now)
	require.NoError(t, repo.Save(ctx, attempt))

	attempt.State = enums.SagaStateAuthorizationFailed
	attempt.OrderID = "ord-a1"
	attempt.OrderStatus = enums.OrderStatusPaymentPending
	attempt.Intent = &payments.Intent{IntentID: "pi_1"}
	attempt.Outcome = &Outcome{State: enums.SagaStateAuthorizationFailed, Kind: FailureBusinessRejection, Reason: "card_declined"}
	require.NoError(t, repo.Save(ctx, attempt))

	row, err := repo.FindByID(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.SagaStateAuthorizationFailed, row.State)
	assert.Equal(t, "user42", row.UserID)
	require.NotNil(t, row.IntentID)
	assert.Equal(t, "pi_1", *row.IntentID)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "card_declined", *row.FailureReason)
	require.NotNil(t, row.OrderStatus)
	assert.Equal(t, enums.OrderStatusPaymentPending, *row.OrderStatus)
}

func TestRepositorySaveRejectsReusedIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	now := time.Now().UTC()

	first := ledgerAttempt("k1", enums.SagaStateIdle, "", now)
	require.NoError(t, repo.Save(ctx, first))

	second := ledgerAttempt("k2", enums.SagaStateIdle, "", now)
	second.IdempotencyKey = first.IdempotencyKey
	err := repo.Save(ctx, second)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeIdempotency, pkgerrors.CodeOf(err))
}

func TestRepositoryFindMissing(t *testing.T) {
	row, err := NewRepository(newTestDB(t)).FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRepositoryListAbandoned(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	old := time.Now().UTC().Add(-2 * time.Hour)
	fresh := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, ledgerAttempt("pending-old", enums.SagaStateAuthorizationFailed, enums.OrderStatusPaymentPending, old)))
	require.NoError(t, repo.Save(ctx, ledgerAttempt("created-old", enums.SagaStateAbandoned, enums.OrderStatusCreated, old.Add(time.Minute))))
	require.NoError(t, repo.Save(ctx, ledgerAttempt("pending-fresh", enums.SagaStateAuthorizationFailed, enums.OrderStatusPaymentPending, fresh)))
	require.NoError(t, repo.Save(ctx, ledgerAttempt("paid-old", enums.SagaStateSucceeded, enums.OrderStatusPaid, old)))
	require.NoError(t, repo.Save(ctx, ledgerAttempt("no-order", enums.SagaStateOrderFailed, "", old)))

	rows, err := repo.ListAbandoned(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "pending-old", rows[0].ID)
	assert.Equal(t, "created-old", rows[1].ID)
}
