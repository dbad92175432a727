package booking

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	"github.com/driveloop/driveloop-backend/pkg/pagination"
)

// CreateBookingInput captures a renter's booking request. SourceID is the
// tokenized payment method the hold is placed against.
type CreateBookingInput struct {
	RenterID   uuid.UUID
	VehicleID  uuid.UUID
	PickupAt   time.Time
	ReturnAt   time.Time
	SourceID   string
	CustomerID string
	Note       string
}

// DecisionInput identifies the host decision on a pending booking.
type DecisionInput struct {
	BookingID uuid.UUID
	HostID    uuid.UUID
	Reason    string
}

// CancelInput identifies a cancellation by the renter or the host. The
// initiator is derived from which party ActorID matches.
type CancelInput struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	Reason    string
}

// CompleteInput closes out a confirmed trip. ReturnedAt is the actual return
// time when one is known; nil means the vehicle came back on schedule.
type CompleteInput struct {
	BookingID  uuid.UUID
	ReturnedAt *time.Time
}

// ListView selects which side of the booking the listing is scoped to.
type ListView string

const (
	ListViewRenter ListView = "renter"
	ListViewHost   ListView = "host"
)

// ListInput carries the scoping and paging inputs for booking listings.
type ListInput struct {
	UserID uuid.UUID
	View   ListView
	State  *enums.BookingState
	Params pagination.Params
}

// BookingList is one page of bookings plus the cursor for the next page.
type BookingList struct {
	Bookings   []models.Booking `json:"bookings"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Quote is the priced breakdown of a rental window.
type Quote struct {
	RentalDays       int
	SubtotalMinor    int64
	PlatformFeeMinor int64
	TotalMinor       int64
}

// QuoteFor prices a rental window against a vehicle's daily rate. Any
// started 24h period counts as a full rental day.
func QuoteFor(dailyRateMinor int64, platformFeePercent int, pickupAt, returnAt time.Time) Quote {
	days := startedDays(pickupAt, returnAt)
	subtotal := dailyRateMinor * int64(days)
	fee := percentOf(subtotal, platformFeePercent)
	return Quote{
		RentalDays:       days,
		SubtotalMinor:    subtotal,
		PlatformFeeMinor: fee,
		TotalMinor:       subtotal + fee,
	}
}

// LateFee charges one rental day for every started late day past the
// scheduled return.
func LateFee(dailyRateMinor int64, scheduledReturn, actualReturn time.Time) int64 {
	if !actualReturn.After(scheduledReturn) {
		return 0
	}
	return dailyRateMinor * int64(startedDays(scheduledReturn, actualReturn))
}

func startedDays(from, to time.Time) int {
	hours := to.Sub(from).Hours()
	days := int(math.Ceil(hours / 24))
	if days < 1 {
		days = 1
	}
	return days
}

func percentOf(amountMinor int64, pct int) int64 {
	if amountMinor <= 0 || pct <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(amountMinor)
	ratio := decimal.NewFromInt(int64(pct)).Div(decimal.NewFromInt(100))
	return amount.Mul(ratio).Round(0).IntPart()
}
