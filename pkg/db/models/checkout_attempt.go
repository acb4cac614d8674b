package models

import (
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// CheckoutAttempt is the durable ledger row for one checkout attempt.
type CheckoutAttempt struct {
	ID             string             `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ClientID       string             `gorm:"column:client_id;not null" json:"client_id"`
	UserID         string             `gorm:"column:user_id;not null;index" json:"user_id"`
	IdempotencyKey string             `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	Gateway        enums.GatewayKind  `gorm:"column:gateway;not null" json:"gateway"`
	State          enums.SagaState    `gorm:"column:state;not null;index" json:"state"`
	OrderID        *string            `gorm:"column:order_id" json:"order_id,omitempty"`
	OrderNumber    *string            `gorm:"column:order_number" json:"order_number,omitempty"`
	OrderStatus    *enums.OrderStatus `gorm:"column:order_status" json:"order_status,omitempty"`
	IntentID       *string            `gorm:"column:intent_id" json:"intent_id,omitempty"`
	TransactionID  *string            `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	AmountCents    int64              `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency       string             `gorm:"column:currency;not null" json:"currency"`
	FailureKind    *string            `gorm:"column:failure_kind" json:"failure_kind,omitempty"`
	FailureReason  *string            `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name used by migrations.
func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}
