package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// Booking is the single source of truth for a rental's lifecycle and
// settlement position. It is mutated exclusively by the booking orchestrator
// through versioned read-modify-write cycles.
type Booking struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RenterID  uuid.UUID `gorm:"column:renter_id;type:uuid;not null;index"`
	HostID    uuid.UUID `gorm:"column:host_id;type:uuid;not null;index"`
	VehicleID uuid.UUID `gorm:"column:vehicle_id;type:uuid;not null;index"`

	PickupAt   time.Time `gorm:"column:pickup_at;not null"`
	ReturnAt   time.Time `gorm:"column:return_at;not null"`
	RentalDays int       `gorm:"column:rental_days;not null"`

	Currency         enums.Currency `gorm:"column:currency;type:text;not null;default:'PHP'"`
	SubtotalMinor    int64          `gorm:"column:subtotal_minor;not null"`
	PlatformFeeMinor int64          `gorm:"column:platform_fee_minor;not null"`
	LateFeeMinor     int64          `gorm:"column:late_fee_minor;not null;default:0"`
	TotalAmountMinor int64          `gorm:"column:total_amount_minor;not null"`

	BookingState enums.BookingState `gorm:"column:booking_state;type:booking_state;not null;default:'pending'"`
	PaymentState enums.PaymentState `gorm:"column:payment_state;type:payment_state;not null;default:'authorized'"`

	PaymentAuthorizationRef string `gorm:"column:payment_authorization_ref;not null"`

	Cancellation *Cancellation `gorm:"column:cancellation;type:jsonb;serializer:json"`

	// Version guards read-modify-write cycles; every persisted transition
	// increments it and writes are predicated on the value read.
	Version int `gorm:"column:version;not null;default:1"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Cancellation captures the terms a booking was cancelled under.
type Cancellation struct {
	By                enums.CancellationInitiator `json:"by"`
	Reason            string                      `json:"reason,omitempty"`
	At                time.Time                   `json:"at"`
	RefundPercentage  int                         `json:"refund_percentage"`
	RefundAmountMinor int64                       `json:"refund_amount_minor"`
	RefundRef         string                      `json:"refund_ref,omitempty"`
}
