package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// OutboxDLQ stores outbox rows that exhausted their publish attempts.
type OutboxDLQ struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OutboxEventID uuid.UUID                 `gorm:"column:outbox_event_id;type:uuid;not null;index"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	FailureReason string                    `gorm:"column:failure_reason;not null"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
