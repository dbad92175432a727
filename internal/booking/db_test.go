package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
)

func setupBookingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	vehicles := `
CREATE TABLE IF NOT EXISTS vehicles (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  daily_rate_minor INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'PHP',
  operational_state TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`
	bookings := `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  renter_id TEXT NOT NULL,
  host_id TEXT NOT NULL,
  vehicle_id TEXT NOT NULL,
  pickup_at DATETIME NOT NULL,
  return_at DATETIME NOT NULL,
  rental_days INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'PHP',
  subtotal_minor INTEGER NOT NULL,
  platform_fee_minor INTEGER NOT NULL,
  late_fee_minor INTEGER NOT NULL DEFAULT 0,
  total_amount_minor INTEGER NOT NULL,
  booking_state TEXT NOT NULL DEFAULT 'pending',
  payment_state TEXT NOT NULL DEFAULT 'authorized',
  payment_authorization_ref TEXT NOT NULL DEFAULT '',
  cancellation TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(vehicles).Error)
	require.NoError(t, db.Exec(bookings).Error)
	require.NoError(t, db.Exec(outboxEvents).Error)
	return db
}

func newVehicle(t *testing.T, db *gorm.DB, dailyRateMinor int64) *models.Vehicle {
	t.Helper()

	vehicle := &models.Vehicle{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		DailyRateMinor:   dailyRateMinor,
		Currency:         enums.CurrencyPHP,
		OperationalState: enums.OperationalStateActive,
	}
	require.NoError(t, db.Create(vehicle).Error)
	return vehicle
}

func newBookingRow(t *testing.T, db *gorm.DB, vehicle *models.Vehicle, state enums.BookingState, payState enums.PaymentState, pickupAt, returnAt time.Time) *models.Booking {
	t.Helper()

	days := startedDays(pickupAt, returnAt)
	subtotal := vehicle.DailyRateMinor * int64(days)
	fee := percentOf(subtotal, 10)
	booking := &models.Booking{
		ID:                      uuid.New(),
		RenterID:                uuid.New(),
		HostID:                  vehicle.OwnerID,
		VehicleID:               vehicle.ID,
		PickupAt:                pickupAt,
		ReturnAt:                returnAt,
		RentalDays:              days,
		Currency:                vehicle.Currency,
		SubtotalMinor:           subtotal,
		PlatformFeeMinor:        fee,
		TotalAmountMinor:        subtotal + fee,
		BookingState:            state,
		PaymentState:            payState,
		PaymentAuthorizationRef: "auth-" + uuid.NewString(),
		Version:                 1,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func reloadBooking(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Booking {
	t.Helper()

	var booking models.Booking
	require.NoError(t, db.Where("id = ?", id).First(&booking).Error)
	return &booking
}

func reloadVehicle(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Vehicle {
	t.Helper()

	var vehicle models.Vehicle
	require.NoError(t, db.Where("id = ?", id).First(&vehicle).Error)
	return &vehicle
}

func countOutboxEvents(t *testing.T, db *gorm.DB, aggregateID uuid.UUID, eventType enums.OutboxEventType) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).
		Count(&count).Error)
	return count
}
