package notifications

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveloop/driveloop-backend/pkg/enums"
	"github.com/driveloop/driveloop-backend/pkg/outbox/payloads"
)

func marshalPayload(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestNotificationsForBookingRequested(t *testing.T) {
	hostID := uuid.New()
	bookingID := uuid.New()
	data := marshalPayload(t, payloads.BookingRequestedEvent{
		BookingID:  bookingID,
		RenterID:   uuid.New(),
		HostID:     hostID,
		PickupAt:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		ReturnAt:   time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC),
		TotalMinor: 33_000,
		Currency:   "PHP",
	})

	rows, err := notificationsFor(enums.EventBookingRequested, data)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hostID, rows[0].UserID, "the host is asked to decide")
	assert.Equal(t, enums.NotificationBookingRequested, rows[0].Type)
	require.NotNil(t, rows[0].BookingID)
	assert.Equal(t, bookingID, *rows[0].BookingID)
	assert.Contains(t, rows[0].Message, "PHP 330.00")
}

func TestNotificationsForCancellationTargetsCounterparty(t *testing.T) {
	renterID := uuid.New()
	hostID := uuid.New()
	base := payloads.BookingCancelledEvent{
		BookingID: uuid.New(),
		RenterID:  renterID,
		HostID:    hostID,
	}

	base.CancelledBy = enums.CancelledByRenter
	rows, err := notificationsFor(enums.EventBookingCancelled, marshalPayload(t, base))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hostID, rows[0].UserID)

	base.CancelledBy = enums.CancelledByHost
	rows, err = notificationsFor(enums.EventBookingCancelled, marshalPayload(t, base))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, renterID, rows[0].UserID)
}

func TestNotificationsForCompletionNotifiesBothSides(t *testing.T) {
	renterID := uuid.New()
	hostID := uuid.New()
	data := marshalPayload(t, payloads.BookingCompletedEvent{
		BookingID:    uuid.New(),
		RenterID:     renterID,
		HostID:       hostID,
		LateFeeMinor: 10_000,
	})

	rows, err := notificationsFor(enums.EventBookingCompleted, data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, renterID, rows[0].UserID)
	assert.Contains(t, rows[0].Message, "late return fee")
	assert.Equal(t, hostID, rows[1].UserID)
}

func TestNotificationsForRefundIssued(t *testing.T) {
	renterID := uuid.New()
	data := marshalPayload(t, payloads.RefundIssuedEvent{
		BookingID:   uuid.New(),
		RenterID:    renterID,
		RefundRef:   "refund-1",
		AmountMinor: 5_500,
		Currency:    "PHP",
	})

	rows, err := notificationsFor(enums.EventRefundIssued, data)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, renterID, rows[0].UserID)
	assert.Contains(t, rows[0].Message, "PHP 55.00")
}

func TestNotificationsForMalformedPayload(t *testing.T) {
	_, err := notificationsFor(enums.EventBookingConfirmed, json.RawMessage(`{"booking_id":42}`))
	require.Error(t, err)
}
