package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// OutboxEvent is a checkout event waiting to be published.
type OutboxEvent struct {
	ID            string                    `gorm:"column:id;type:varchar(36);primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   string                    `gorm:"column:aggregate_id;not null;index"`
	Payload       json.RawMessage           `gorm:"column:payload;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// OutboxDLQ keeps a copy of every event that will not be retried.
type OutboxDLQ struct {
	ID            string                     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	EventID       string                     `gorm:"column:event_id;not null;index" json:"event_id"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;not null" json:"event_type"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;not null" json:"aggregate_type"`
	AggregateID   string                     `gorm:"column:aggregate_id;not null" json:"aggregate_id"`
	Payload       json.RawMessage            `gorm:"column:payload_json;not null" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null" json:"error_reason"`
	ErrorMessage  *string                    `gorm:"column:error_message" json:"error_message,omitempty"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	FailedAt      time.Time                  `gorm:"column:failed_at" json:"failed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
