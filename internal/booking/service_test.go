package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/internal/availability"
	"github.com/driveloop/driveloop-backend/pkg/config"
	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/outbox"
	"github.com/driveloop/driveloop-backend/pkg/payments"
)

type stubGateway struct {
	authorizeErr error
	captureErr   error
	releaseErr   error
	refundErr    error

	authorizeCalls int
	captureCalls   int
	releaseCalls   int
	refundCalls    int

	lastAuthorize payments.AuthorizeParams
	lastRefund    payments.RefundParams
}

func (g *stubGateway) Authorize(ctx context.Context, params payments.AuthorizeParams) (*payments.Authorization, error) {
	g.authorizeCalls++
	g.lastAuthorize = params
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return &payments.Authorization{Ref: "auth-" + params.BookingID.String(), Status: "AUTHORIZED"}, nil
}

func (g *stubGateway) Capture(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	g.captureCalls++
	return g.captureErr
}

func (g *stubGateway) Release(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	g.releaseCalls++
	return g.releaseErr
}

func (g *stubGateway) Refund(ctx context.Context, params payments.RefundParams) (*payments.RefundResult, error) {
	g.refundCalls++
	g.lastRefund = params
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &payments.RefundResult{Ref: "refund-" + params.BookingID.String(), Status: "COMPLETED"}, nil
}

func gatewayError(kind payments.ErrorKind, op payments.Operation) error {
	return &payments.Error{Kind: kind, Op: op, Msg: "stubbed"}
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T, db *gorm.DB, gw payments.Gateway) *service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "booking-test", Output: io.Discard})
	svc, err := NewService(
		NewRepository(db),
		testTxRunner{db: db},
		availability.NewChecker(db),
		gw,
		outbox.NewService(outbox.NewRepository(db), logg),
		logg,
		config.BookingConfig{
			PlatformFeePercent: 10,
			StoreRetryAttempts: 3,
			StoreRetryWait:     time.Millisecond,
		},
	)
	require.NoError(t, err)
	return svc.(*service)
}

func TestCreateBooking(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	renterID := uuid.New()
	pickup := time.Now().Add(48 * time.Hour)

	booking, err := svc.Create(context.Background(), CreateBookingInput{
		RenterID:  renterID,
		VehicleID: vehicle.ID,
		PickupAt:  pickup,
		ReturnAt:  pickup.Add(72 * time.Hour),
		SourceID:  "cnon:card-nonce",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStatePending, booking.BookingState)
	assert.Equal(t, enums.PaymentStateAuthorized, booking.PaymentState)
	assert.Equal(t, 3, booking.RentalDays)
	assert.Equal(t, int64(30_000), booking.SubtotalMinor)
	assert.Equal(t, int64(3_000), booking.PlatformFeeMinor)
	assert.Equal(t, int64(33_000), booking.TotalAmountMinor)
	assert.Equal(t, "auth-"+booking.ID.String(), booking.PaymentAuthorizationRef)
	assert.Equal(t, vehicle.OwnerID, booking.HostID)

	assert.Equal(t, 1, gw.authorizeCalls)
	assert.Equal(t, int64(33_000), gw.lastAuthorize.AmountMinor)

	stored := reloadBooking(t, db, booking.ID)
	assert.Equal(t, enums.BookingStatePending, stored.BookingState)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingRequested))
}

func TestCreateBookingRejectsBadWindows(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	renterID := uuid.New()
	now := time.Now()

	tests := []struct {
		name     string
		pickupAt time.Time
		returnAt time.Time
	}{
		{"pickup in the past", now.Add(-time.Hour), now.Add(24 * time.Hour)},
		{"return before pickup", now.Add(48 * time.Hour), now.Add(24 * time.Hour)},
		{"zero times", time.Time{}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateBookingInput{
				RenterID:  renterID,
				VehicleID: vehicle.ID,
				PickupAt:  tt.pickupAt,
				ReturnAt:  tt.returnAt,
				SourceID:  "cnon:card-nonce",
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		})
	}
	assert.Zero(t, gw.authorizeCalls)
}

func TestCreateBookingUnavailableWindow(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(48*time.Hour))

	_, err := svc.Create(context.Background(), CreateBookingInput{
		RenterID:  uuid.New(),
		VehicleID: vehicle.ID,
		PickupAt:  pickup.Add(24 * time.Hour),
		ReturnAt:  pickup.Add(96 * time.Hour),
		SourceID:  "cnon:card-nonce",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeVehicleUnavailable))
	assert.Zero(t, gw.authorizeCalls, "no hold is placed for an unavailable window")
}

func TestCreateBookingAuthorizationDeclined(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{authorizeErr: gatewayError(payments.KindDeclined, payments.OpAuthorize)}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)

	_, err := svc.Create(context.Background(), CreateBookingInput{
		RenterID:  uuid.New(),
		VehicleID: vehicle.ID,
		PickupAt:  pickup,
		ReturnAt:  pickup.Add(24 * time.Hour),
		SourceID:  "cnon:card-nonce",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentDeclined))

	var count int64
	require.NoError(t, db.Table("bookings").Where("vehicle_id = ?", vehicle.ID).Count(&count).Error)
	assert.Zero(t, count, "declined authorization must not persist a booking")
}

func TestAcceptBooking(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(48*time.Hour))

	updated, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateConfirmed, updated.BookingState)
	assert.Equal(t, enums.PaymentStateCaptured, updated.PaymentState)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 1, gw.captureCalls)

	assert.Equal(t, enums.OperationalStateOnTrip, reloadVehicle(t, db, vehicle.ID).OperationalState)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingConfirmed))
}

func TestAcceptBookingIdempotentOnRetry(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)

	again, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStateConfirmed, again.BookingState)
	assert.Equal(t, 1, gw.captureCalls, "retried accept must not touch the gateway")
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingConfirmed))
}

func TestAcceptSecondOverlappingBookingLosesRace(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	winner := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(48*time.Hour))
	loser := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup.Add(24*time.Hour), pickup.Add(72*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: winner.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), DecisionInput{BookingID: loser.ID, HostID: vehicle.OwnerID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeRaceLost))

	stored := reloadBooking(t, db, loser.ID)
	assert.Equal(t, enums.BookingStateDeclined, stored.BookingState)
	assert.Equal(t, enums.PaymentStateReleased, stored.PaymentState)
	assert.Equal(t, 1, gw.releaseCalls, "the losing authorization is voided")
	assert.Equal(t, 1, gw.captureCalls, "only the winner captures")
	assert.EqualValues(t, 1, countOutboxEvents(t, db, loser.ID, enums.EventBookingDeclined))
}

func TestAcceptCaptureRejectedLeavesBookingPending(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{captureErr: gatewayError(payments.KindDeclined, payments.OpCapture)}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCaptureFailed))

	stored := reloadBooking(t, db, booking.ID)
	assert.Equal(t, enums.BookingStatePending, stored.BookingState)
	assert.Equal(t, enums.PaymentStateAuthorized, stored.PaymentState)
	assert.Equal(t, enums.OperationalStateActive, reloadVehicle(t, db, vehicle.ID).OperationalState, "hold is reverted")
}

func TestAcceptCaptureNetworkFailureIsUncertain(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{captureErr: gatewayError(payments.KindNetwork, payments.OpCapture)}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSettlementUncertain))

	stored := reloadBooking(t, db, booking.ID)
	assert.Equal(t, enums.BookingStatePending, stored.BookingState)
	assert.Equal(t, enums.OperationalStateActive, reloadVehicle(t, db, vehicle.ID).OperationalState)
	assert.EqualValues(t, 0, countOutboxEvents(t, db, booking.ID, enums.EventBookingConfirmed))
}

func TestAcceptAlreadyCapturedCountsAsSuccess(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{captureErr: gatewayError(payments.KindAlreadyCaptured, payments.OpCapture)}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	updated, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStateConfirmed, updated.BookingState)
	assert.Equal(t, enums.PaymentStateCaptured, updated.PaymentState)
}

func TestAcceptRejectsWrongHost(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Zero(t, gw.captureCalls)
}

func TestAcceptTerminalStateIsInvalidTransition(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateCancelled, enums.PaymentStateReleased, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Accept(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
	assert.Zero(t, gw.captureCalls)
}

func TestDeclineBooking(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	updated, err := svc.Decline(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID, Reason: "vehicle in the shop"})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateDeclined, updated.BookingState)
	assert.Equal(t, enums.PaymentStateReleased, updated.PaymentState)
	assert.Equal(t, 1, gw.releaseCalls)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingDeclined))

	again, err := svc.Decline(context.Background(), DecisionInput{BookingID: booking.ID, HostID: vehicle.OwnerID})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStateDeclined, again.BookingState)
	assert.Equal(t, 1, gw.releaseCalls, "retried decline must not release twice")
}

func TestCancelPendingReleasesHold(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	updated, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID, Reason: "change of plans"})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateCancelled, updated.BookingState)
	assert.Equal(t, enums.PaymentStateReleased, updated.PaymentState)
	assert.Equal(t, 1, gw.releaseCalls)
	assert.Zero(t, gw.refundCalls)

	require.NotNil(t, updated.Cancellation)
	assert.Equal(t, enums.CancelledByRenter, updated.Cancellation.By)
	assert.Zero(t, updated.Cancellation.RefundAmountMinor)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingCancelled))
}

func TestCancelConfirmedFollowsSchedule(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	// 10 hours before pickup lands in the 50% tier.
	pickup := time.Now().Add(10 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))
	require.NoError(t, db.Model(&models.Vehicle{}).Where("id = ?", vehicle.ID).
		Update("operational_state", enums.OperationalStateOnTrip).Error)

	updated, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateCancelled, updated.BookingState)
	assert.Equal(t, enums.PaymentStatePartiallyRefunded, updated.PaymentState)
	assert.Equal(t, 1, gw.refundCalls)
	assert.Equal(t, booking.TotalAmountMinor/2, gw.lastRefund.AmountMinor)

	require.NotNil(t, updated.Cancellation)
	assert.Equal(t, 50, updated.Cancellation.RefundPercentage)
	assert.Equal(t, "refund-"+booking.ID.String(), updated.Cancellation.RefundRef)

	assert.Equal(t, enums.OperationalStateActive, reloadVehicle(t, db, vehicle.ID).OperationalState)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingCancelled))
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventRefundIssued))
}

func TestCancelByHostRefundsEverything(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(2 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))

	updated, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.HostID})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStateRefunded, updated.PaymentState)
	assert.Equal(t, booking.TotalAmountMinor, gw.lastRefund.AmountMinor)
	require.NotNil(t, updated.Cancellation)
	assert.Equal(t, enums.CancelledByHost, updated.Cancellation.By)
	assert.Equal(t, 100, updated.Cancellation.RefundPercentage)
}

func TestCancelAfterTripStartForfeitsRefund(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(-2 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))

	updated, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateCancelled, updated.BookingState)
	assert.Equal(t, enums.PaymentStatePartiallyRefunded, updated.PaymentState, "cancelled bookings always settle")
	assert.True(t, updated.PaymentState.IsSettled())
	require.NotNil(t, updated.Cancellation)
	assert.Equal(t, 0, updated.Cancellation.RefundPercentage)
	assert.EqualValues(t, 0, updated.Cancellation.RefundAmountMinor)
	assert.Zero(t, gw.refundCalls, "no gateway call for a zero refund")
	assert.Zero(t, gw.releaseCalls)
	assert.EqualValues(t, 0, countOutboxEvents(t, db, booking.ID, enums.EventRefundIssued))
}

func TestCancelIdempotentOnRetry(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID})
	require.NoError(t, err)
	require.Equal(t, 1, gw.refundCalls)

	again, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStateCancelled, again.BookingState)
	assert.Equal(t, 1, gw.refundCalls, "retried cancel must not refund twice")
}

func TestCancelRefundNetworkFailureIsUncertain(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{refundErr: gatewayError(payments.KindNetwork, payments.OpRefund)}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: booking.RenterID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSettlementUncertain))

	stored := reloadBooking(t, db, booking.ID)
	assert.Equal(t, enums.BookingStateConfirmed, stored.BookingState, "booking is unchanged until the refund lands")
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(24*time.Hour))

	_, err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, ActorID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestCompleteBooking(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(-72 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(48*time.Hour))
	require.NoError(t, db.Model(&models.Vehicle{}).Where("id = ?", vehicle.ID).
		Update("operational_state", enums.OperationalStateOnTrip).Error)

	updated, err := svc.Complete(context.Background(), CompleteInput{BookingID: booking.ID})
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStateCompleted, updated.BookingState)
	assert.Zero(t, updated.LateFeeMinor)
	assert.Equal(t, booking.TotalAmountMinor, updated.TotalAmountMinor)
	assert.Equal(t, enums.OperationalStateActive, reloadVehicle(t, db, vehicle.ID).OperationalState)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingCompleted))

	again, err := svc.Complete(context.Background(), CompleteInput{BookingID: booking.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStateCompleted, again.BookingState)
	assert.EqualValues(t, 1, countOutboxEvents(t, db, booking.ID, enums.EventBookingCompleted))
}

func TestCompleteBookingChargesLateFee(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(-96 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStateConfirmed, enums.PaymentStateCaptured, pickup, pickup.Add(48*time.Hour))

	// Returned 30 hours past the scheduled time: two started late days.
	returnedAt := booking.ReturnAt.Add(30 * time.Hour)
	updated, err := svc.Complete(context.Background(), CompleteInput{BookingID: booking.ID, ReturnedAt: &returnedAt})
	require.NoError(t, err)

	assert.Equal(t, int64(20_000), updated.LateFeeMinor)
	assert.Equal(t, booking.TotalAmountMinor+20_000, updated.TotalAmountMinor)
}

func TestGetBookingScopesToParticipants(t *testing.T) {
	db := setupBookingTestDB(t)
	gw := &stubGateway{}
	svc := newTestService(t, db, gw)

	vehicle := newVehicle(t, db, 10_000)
	pickup := time.Now().Add(48 * time.Hour)
	booking := newBookingRow(t, db, vehicle, enums.BookingStatePending, enums.PaymentStateAuthorized, pickup, pickup.Add(24*time.Hour))

	got, err := svc.Get(context.Background(), booking.ID, booking.RenterID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = svc.Get(context.Background(), booking.ID, booking.HostID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), booking.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}
