// Package availability answers whether a vehicle is free for a rental
// window. A window is half-open: a booking returning at 10:00 does not
// conflict with one picking up at 10:00.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
)

// blockingStates are the booking states that hold a vehicle's dates.
// Declined, cancelled and completed bookings free the window.
var blockingStates = []enums.BookingState{
	enums.BookingStatePending,
	enums.BookingStateConfirmed,
}

type Checker struct {
	db *gorm.DB
}

func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// Window is a booked interval returned to callers listing a vehicle's schedule.
type Window struct {
	BookingID uuid.UUID          `json:"booking_id"`
	State     enums.BookingState `json:"state"`
	PickupAt  time.Time          `json:"pickup_at"`
	ReturnAt  time.Time          `json:"return_at"`
}

// IsAvailable reports whether the vehicle has no blocking booking that
// overlaps [pickupAt, returnAt).
func (c *Checker) IsAvailable(ctx context.Context, vehicleID uuid.UUID, pickupAt, returnAt time.Time) (bool, error) {
	if err := validateWindow(pickupAt, returnAt); err != nil {
		return false, err
	}
	return c.check(c.db.WithContext(ctx), vehicleID, pickupAt, returnAt, uuid.Nil)
}

// IsAvailableTx runs the same overlap check inside the caller's transaction.
// excludeBookingID skips the booking being decided so it does not conflict
// with itself during accept.
func (c *Checker) IsAvailableTx(tx *gorm.DB, vehicleID uuid.UUID, pickupAt, returnAt time.Time, excludeBookingID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if err := validateWindow(pickupAt, returnAt); err != nil {
		return false, err
	}
	return c.check(tx, vehicleID, pickupAt, returnAt, excludeBookingID)
}

// BookedWindows lists the blocking bookings that overlap [from, to),
// ordered by pickup time.
func (c *Checker) BookedWindows(ctx context.Context, vehicleID uuid.UUID, from, to time.Time) ([]Window, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	var rows []models.Booking
	err := c.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Where("booking_state IN ?", blockingStates).
		Where("pickup_at < ? AND return_at > ?", to, from).
		Order("pickup_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(rows))
	for _, row := range rows {
		windows = append(windows, Window{
			BookingID: row.ID,
			State:     row.BookingState,
			PickupAt:  row.PickupAt,
			ReturnAt:  row.ReturnAt,
		})
	}
	return windows, nil
}

func (c *Checker) check(db *gorm.DB, vehicleID uuid.UUID, pickupAt, returnAt time.Time, excludeBookingID uuid.UUID) (bool, error) {
	query := db.Model(&models.Booking{}).
		Where("vehicle_id = ?", vehicleID).
		Where("booking_state IN ?", blockingStates).
		Where("pickup_at < ? AND return_at > ?", returnAt, pickupAt)
	if excludeBookingID != uuid.Nil {
		query = query.Where("id <> ?", excludeBookingID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

func validateWindow(pickupAt, returnAt time.Time) error {
	if pickupAt.IsZero() || returnAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup and return times are required")
	}
	if !returnAt.After(pickupAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "return time must be after pickup time")
	}
	return nil
}
