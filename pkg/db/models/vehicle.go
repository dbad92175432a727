package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// Vehicle is the availability view of a listed vehicle. OperationalState is
// derived from booking state and repaired by the reconcile job when it
// drifts; it is never authoritative on its own.
type Vehicle struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID          uuid.UUID              `gorm:"column:owner_id;type:uuid;not null;index"`
	DailyRateMinor   int64                  `gorm:"column:daily_rate_minor;not null"`
	Currency         enums.Currency         `gorm:"column:currency;type:text;not null;default:'PHP'"`
	OperationalState enums.OperationalState `gorm:"column:operational_state;type:operational_state;not null;default:'active'"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
