package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a booking repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *repository) FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&vehicle).Error
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// UpdateBookingVersioned applies updates only when the row still carries
// fromVersion, bumping the version in the same statement. Zero rows means a
// concurrent writer got there first.
func (r *repository) UpdateBookingVersioned(ctx context.Context, id uuid.UUID, fromVersion int, updates map[string]any) error {
	applied := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		applied[k] = v
	}
	applied["version"] = fromVersion + 1

	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", id, fromVersion).
		Updates(applied)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "booking was modified concurrently")
	}
	return nil
}

// HoldVehicle reserves the vehicle for an accept in flight. The compare and
// swap ensures only one accept per vehicle can proceed at a time.
func (r *repository) HoldVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error) {
	return r.SetVehicleState(ctx, vehicleID, enums.OperationalStateActive, enums.OperationalStateOnTrip)
}

// ReleaseVehicleHold returns the vehicle to active. A no-op when the vehicle
// is not on trip, so it is safe on every unwind path.
func (r *repository) ReleaseVehicleHold(ctx context.Context, vehicleID uuid.UUID) error {
	_, err := r.SetVehicleState(ctx, vehicleID, enums.OperationalStateOnTrip, enums.OperationalStateActive)
	return err
}

func (r *repository) SetVehicleState(ctx context.Context, vehicleID uuid.UUID, from, to enums.OperationalState) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ? AND operational_state = ?", vehicleID, from).
		Update("operational_state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasConfirmedOverlap reports whether a confirmed booking other than the
// excluded one overlaps [pickupAt, returnAt) on this vehicle.
func (r *repository) HasConfirmedOverlap(ctx context.Context, vehicleID uuid.UUID, pickupAt, returnAt time.Time, excludeBookingID uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("vehicle_id = ?", vehicleID).
		Where("booking_state = ?", enums.BookingStateConfirmed).
		Where("pickup_at < ? AND return_at > ?", returnAt, pickupAt)
	if excludeBookingID != uuid.Nil {
		query = query.Where("id <> ?", excludeBookingID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListBookings(ctx context.Context, input ListInput) (*BookingList, error) {
	limit := pagination.LimitWithBuffer(input.Params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Booking{})
	switch input.View {
	case ListViewHost:
		query = query.Where("host_id = ?", input.UserID)
	default:
		query = query.Where("renter_id = ?", input.UserID)
	}
	if input.State != nil {
		query = query.Where("booking_state = ?", *input.State)
	}

	cursor, err := pagination.ParseCursor(input.Params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Booking
	err = query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	next := ""
	if len(rows) == limit {
		rows = rows[:limit-1]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &BookingList{Bookings: rows, NextCursor: next}, nil
}

func (r *repository) FindCompletableBookings(ctx context.Context, returnedBefore time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("booking_state = ?", enums.BookingStateConfirmed).
		Where("return_at < ?", returnedBefore).
		Order("return_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindVehicleIDsToRelease lists vehicles marked on trip that no confirmed
// booking holds anymore. The reconcile job repairs these.
func (r *repository) FindVehicleIDsToRelease(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Raw(`
		SELECT v.id FROM vehicles v
		WHERE v.operational_state = ?
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.vehicle_id = v.id AND b.booking_state = ?
		  )
	`, enums.OperationalStateOnTrip, enums.BookingStateConfirmed).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindVehicleIDsToHold lists active vehicles that a confirmed booking should
// be holding on trip.
func (r *repository) FindVehicleIDsToHold(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Raw(`
		SELECT v.id FROM vehicles v
		WHERE v.operational_state = ?
		  AND EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.vehicle_id = v.id AND b.booking_state = ?
		  )
	`, enums.OperationalStateActive, enums.BookingStateConfirmed).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
