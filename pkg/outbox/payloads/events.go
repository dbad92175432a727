package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// BookingRequestedEvent signals a renter placed a new booking request.
type BookingRequestedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	RenterID    uuid.UUID `json:"renter_id"`
	HostID      uuid.UUID `json:"host_id"`
	VehicleID   uuid.UUID `json:"vehicle_id"`
	PickupAt    time.Time `json:"pickup_at"`
	ReturnAt    time.Time `json:"return_at"`
	TotalMinor  int64     `json:"total_minor"`
	Currency    string    `json:"currency"`
	RequestedAt time.Time `json:"requested_at"`
}

// BookingConfirmedEvent is emitted when a host accepts and funds are captured.
type BookingConfirmedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	RenterID      uuid.UUID `json:"renter_id"`
	HostID        uuid.UUID `json:"host_id"`
	VehicleID     uuid.UUID `json:"vehicle_id"`
	CapturedMinor int64     `json:"captured_minor"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// BookingDeclinedEvent is emitted when a host declines or a booking loses
// the race for its dates.
type BookingDeclinedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	RenterID   uuid.UUID `json:"renter_id"`
	HostID     uuid.UUID `json:"host_id"`
	VehicleID  uuid.UUID `json:"vehicle_id"`
	Reason     string    `json:"reason,omitempty"`
	DeclinedAt time.Time `json:"declined_at"`
}

// BookingCancelledEvent carries the cancellation and its refund outcome.
type BookingCancelledEvent struct {
	BookingID         uuid.UUID                   `json:"booking_id"`
	RenterID          uuid.UUID                   `json:"renter_id"`
	HostID            uuid.UUID                   `json:"host_id"`
	VehicleID         uuid.UUID                   `json:"vehicle_id"`
	CancelledBy       enums.CancellationInitiator `json:"cancelled_by"`
	Reason            string                      `json:"reason,omitempty"`
	RefundPercentage  int                         `json:"refund_percentage"`
	RefundAmountMinor int64                       `json:"refund_amount_minor"`
	CancelledAt       time.Time                   `json:"cancelled_at"`
}

// BookingCompletedEvent is emitted when a trip ends and the booking settles.
type BookingCompletedEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	RenterID     uuid.UUID `json:"renter_id"`
	HostID       uuid.UUID `json:"host_id"`
	VehicleID    uuid.UUID `json:"vehicle_id"`
	LateFeeMinor int64     `json:"late_fee_minor"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RefundIssuedEvent reports a refund settled at the processor.
type RefundIssuedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	RenterID    uuid.UUID `json:"renter_id"`
	RefundRef   string    `json:"refund_ref"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	IssuedAt    time.Time `json:"issued_at"`
}
