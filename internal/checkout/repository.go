package checkout

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmgate-checkout/pkg/db"
	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

// Postgres names the inline UNIQUE constraint, SQLite reports the column.
var idempotencyKeyConstraints = []string{
	"checkout_attempts_idempotency_key_key",
	"checkout_attempts.idempotency_key",
}

// Repository is the durable ledger of checkout attempts.
type Repository interface {
	Save(ctx context.Context, attempt Attempt) error
	FindByID(ctx context.Context, id string) (*models.CheckoutAttempt, error)
	ListAbandoned(ctx context.Context, before time.Time, limit int) ([]models.CheckoutAttempt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a GORM-backed ledger.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

// Save upserts the attempt row. A second attempt reusing an idempotency key
// fails with IDEMPOTENCY_KEY_REUSED.
func (r *repository) Save(ctx context.Context, attempt Attempt) error {
	row := toModel(attempt)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "order_id", "order_number", "order_status", "intent_id", "transaction_id",
				"amount_cents", "currency", "failure_kind", "failure_reason", "updated_at",
			}),
		}).
		Create(&row).Error
	if db.IsUniqueViolation(err, idempotencyKeyConstraints...) {
		return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "idempotency key already bound to another checkout attempt").
			WithDetails(map[string]any{"checkout_id": attempt.ID})
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.CheckoutAttempt, error) {
	var row models.CheckoutAttempt
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListAbandoned returns attempts that created an order but never got it paid, oldest first.
func (r *repository) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]models.CheckoutAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("order_id IS NOT NULL").
		Where("state <> ?", enums.SagaStateSucceeded).
		Where("order_status IN ?", []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusPaymentPending}).
		Where("updated_at < ?", before.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func toModel(a Attempt) models.CheckoutAttempt {
	row := models.CheckoutAttempt{
		ID:             a.ID,
		ClientID:       a.ClientID,
		UserID:         a.Identity.UserID,
		IdempotencyKey: a.IdempotencyKey,
		Gateway:        a.Gateway,
		State:          a.State,
		OrderID:        optional(a.OrderID),
		OrderNumber:    optional(a.OrderNumber),
		AmountCents:    a.AmountCents,
		Currency:       a.Currency,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
	if a.OrderStatus != "" {
		status := a.OrderStatus
		row.OrderStatus = &status
	}
	if a.Intent != nil {
		row.IntentID = optional(a.Intent.IntentID)
	}
	if a.Transaction != nil {
		row.TransactionID = optional(a.Transaction.TransactionID)
	}
	if a.Outcome != nil && !a.Outcome.Blocked {
		row.FailureKind = optional(string(a.Outcome.Kind))
		row.FailureReason = optional(a.Outcome.Reason)
	}
	return row
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
