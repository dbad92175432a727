package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// Repository defines persistence operations for bookings and the vehicle
// availability state the orchestrator drives.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	UpdateBookingVersioned(ctx context.Context, id uuid.UUID, fromVersion int, updates map[string]any) error
	HoldVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error)
	ReleaseVehicleHold(ctx context.Context, vehicleID uuid.UUID) error
	SetVehicleState(ctx context.Context, vehicleID uuid.UUID, from, to enums.OperationalState) (bool, error)
	HasConfirmedOverlap(ctx context.Context, vehicleID uuid.UUID, pickupAt, returnAt time.Time, excludeBookingID uuid.UUID) (bool, error)
	ListBookings(ctx context.Context, input ListInput) (*BookingList, error)
	FindCompletableBookings(ctx context.Context, returnedBefore time.Time, limit int) ([]models.Booking, error)
	FindVehicleIDsToRelease(ctx context.Context) ([]uuid.UUID, error)
	FindVehicleIDsToHold(ctx context.Context) ([]uuid.UUID, error)
}
