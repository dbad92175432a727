package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/driveloop/driveloop-backend/internal/refund"
	"github.com/driveloop/driveloop-backend/pkg/config"
	"github.com/driveloop/driveloop-backend/pkg/db/models"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/outbox"
	"github.com/driveloop/driveloop-backend/pkg/outbox/payloads"
	"github.com/driveloop/driveloop-backend/pkg/payments"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type availabilityChecker interface {
	IsAvailable(ctx context.Context, vehicleID uuid.UUID, pickupAt, returnAt time.Time) (bool, error)
	IsAvailableTx(tx *gorm.DB, vehicleID uuid.UUID, pickupAt, returnAt time.Time, excludeBookingID uuid.UUID) (bool, error)
}

// Service defines the booking lifecycle operations. Every transition runs
// gateway calls before the store write and is idempotent on retry.
type Service interface {
	Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error)
	Accept(ctx context.Context, input DecisionInput) (*models.Booking, error)
	Decline(ctx context.Context, input DecisionInput) (*models.Booking, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Booking, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Booking, error)
	Get(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, input ListInput) (*BookingList, error)
}

type service struct {
	repo         Repository
	tx           txRunner
	availability availabilityChecker
	gateway      payments.Gateway
	outbox       outboxPublisher
	logg         *logger.Logger
	cfg          config.BookingConfig
	now          func() time.Time
}

// NewService builds the booking orchestrator with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	availability availabilityChecker,
	gateway payments.Gateway,
	outboxSvc outboxPublisher,
	logg *logger.Logger,
	cfg config.BookingConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:         repo,
		tx:           tx,
		availability: availability,
		gateway:      gateway,
		outbox:       outboxSvc,
		logg:         logg,
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	if input.RenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if input.SourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	now := s.now()
	if input.PickupAt.IsZero() || input.ReturnAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and return times are required")
	}
	if !input.ReturnAt.After(input.PickupAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return time must be after pickup time")
	}
	if !input.PickupAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup time must be in the future")
	}

	vehicle, err := s.repo.FindVehicle(ctx, input.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
	}
	if vehicle.OwnerID == input.RenterID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot book your own vehicle")
	}
	if vehicle.OperationalState == enums.OperationalStateUnavailable {
		return nil, pkgerrors.New(pkgerrors.CodeVehicleUnavailable, "vehicle is not accepting bookings")
	}

	available, err := s.availability.IsAvailable(ctx, vehicle.ID, input.PickupAt, input.ReturnAt)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, pkgerrors.New(pkgerrors.CodeVehicleUnavailable, "vehicle is already booked for the requested dates")
	}

	quote := QuoteFor(vehicle.DailyRateMinor, s.cfg.PlatformFeePercent, input.PickupAt, input.ReturnAt)
	booking := &models.Booking{
		ID:               uuid.New(),
		RenterID:         input.RenterID,
		HostID:           vehicle.OwnerID,
		VehicleID:        vehicle.ID,
		PickupAt:         input.PickupAt,
		ReturnAt:         input.ReturnAt,
		RentalDays:       quote.RentalDays,
		Currency:         vehicle.Currency,
		SubtotalMinor:    quote.SubtotalMinor,
		PlatformFeeMinor: quote.PlatformFeeMinor,
		TotalAmountMinor: quote.TotalMinor,
		BookingState:     enums.BookingStatePending,
		PaymentState:     enums.PaymentStateAuthorized,
		Version:          1,
	}

	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	auth, err := s.gateway.Authorize(ctx, payments.AuthorizeParams{
		BookingID:   booking.ID,
		SourceID:    input.SourceID,
		CustomerID:  input.CustomerID,
		AmountMinor: quote.TotalMinor,
		Currency:    booking.Currency,
		Note:        input.Note,
	})
	if err != nil {
		if payments.IsKind(err, payments.KindDeclined) {
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, "payment method was declined")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "authorize rental hold")
	}
	booking.PaymentAuthorizationRef = auth.Ref

	err = s.retryStore(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			// The window is re-checked inside the tx so two concurrent
			// requests cannot both slip past the pre-authorize check.
			ok, err := s.availability.IsAvailableTx(tx, vehicle.ID, booking.PickupAt, booking.ReturnAt, booking.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recheck availability")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeVehicleUnavailable, "vehicle was booked while authorizing")
			}
			repo := s.repo.WithTx(tx)
			if _, err := repo.CreateBooking(ctx, booking); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist booking")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingRequested,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
				Actor:         actorRef(input.RenterID),
				Data: payloads.BookingRequestedEvent{
					BookingID:   booking.ID,
					RenterID:    booking.RenterID,
					HostID:      booking.HostID,
					VehicleID:   booking.VehicleID,
					PickupAt:    booking.PickupAt,
					ReturnAt:    booking.ReturnAt,
					TotalMinor:  booking.TotalAmountMinor,
					Currency:    string(booking.Currency),
					RequestedAt: now,
				},
			})
		})
	})
	if err != nil {
		// The hold exists at the processor but the booking never did.
		// Best effort void so the renter's funds are not stuck.
		s.releaseQuietly(ctx, booking.ID, auth.Ref)
		return nil, err
	}

	s.logg.Info(ctx, "booking requested")
	return booking, nil
}

func (s *service) Accept(ctx context.Context, input DecisionInput) (*models.Booking, error) {
	booking, err := s.loadForDecision(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	switch booking.BookingState {
	case enums.BookingStateConfirmed:
		// Retried accept after a success. Nothing left to do.
		return booking, nil
	case enums.BookingStatePending:
	default:
		return nil, pkgerrors.New(
			pkgerrors.CodeInvalidTransition,
			"booking cannot be accepted from state "+string(booking.BookingState),
		)
	}

	held, err := s.repo.HoldVehicle(ctx, booking.VehicleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hold vehicle")
	}
	if !held {
		return nil, s.resolveHoldFailure(ctx, booking)
	}

	// A previous trip may have confirmed and completed this window while
	// the booking sat pending. Check once more under the hold.
	conflict, err := s.repo.HasConfirmedOverlap(ctx, booking.VehicleID, booking.PickupAt, booking.ReturnAt, booking.ID)
	if err != nil {
		s.releaseHoldQuietly(ctx, booking.VehicleID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recheck confirmed overlap")
	}
	if conflict {
		s.releaseHoldQuietly(ctx, booking.VehicleID)
		return nil, s.loseRace(ctx, booking)
	}

	if err := s.gateway.Capture(ctx, booking.ID, booking.PaymentAuthorizationRef); err != nil {
		if !payments.IsKind(err, payments.KindAlreadyCaptured) {
			s.releaseHoldQuietly(ctx, booking.VehicleID)
			switch {
			case payments.IsKind(err, payments.KindNetwork):
				return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "capture outcome unknown, booking left pending")
			case payments.IsKind(err, payments.KindAuthorizationExpired):
				return nil, pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, "authorization expired before capture")
			default:
				return nil, pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, "capture was rejected")
			}
		}
	}

	confirmedAt := s.now()
	updated, err := s.persistTransition(ctx, booking.ID, enums.BookingStatePending, map[string]any{
		"booking_state": enums.BookingStateConfirmed,
		"payment_state": enums.PaymentStateCaptured,
	}, func(ctx context.Context, tx *gorm.DB, fresh *models.Booking) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingConfirmed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   fresh.ID,
			Actor:         actorRef(input.HostID),
			Data: payloads.BookingConfirmedEvent{
				BookingID:     fresh.ID,
				RenterID:      fresh.RenterID,
				HostID:        fresh.HostID,
				VehicleID:     fresh.VehicleID,
				CapturedMinor: fresh.TotalAmountMinor,
				ConfirmedAt:   confirmedAt,
			},
		})
	})
	if err != nil {
		// Funds are captured but the confirmation never landed. The hold
		// stays so the dates cannot be resold while this is repaired.
		s.logg.Error(ctx, "captured but confirmation not persisted", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "funds captured but booking not confirmed")
	}

	s.logg.Info(ctx, "booking confirmed")
	return updated, nil
}

func (s *service) Decline(ctx context.Context, input DecisionInput) (*models.Booking, error) {
	booking, err := s.loadForDecision(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	switch booking.BookingState {
	case enums.BookingStateDeclined:
		return booking, nil
	case enums.BookingStatePending:
	default:
		return nil, pkgerrors.New(
			pkgerrors.CodeInvalidTransition,
			"booking cannot be declined from state "+string(booking.BookingState),
		)
	}

	reason := input.Reason
	if reason == "" {
		reason = "declined by host"
	}
	updated, err := s.declineBooking(ctx, booking, input.HostID, reason)
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "booking declined")
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	booking, err := s.loadBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	var initiator enums.CancellationInitiator
	switch input.ActorID {
	case booking.RenterID:
		initiator = enums.CancelledByRenter
	case booking.HostID:
		initiator = enums.CancelledByHost
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to user")
	}

	if booking.BookingState == enums.BookingStateCancelled {
		return booking, nil
	}

	now := s.now()
	decision, err := refund.Evaluate(refund.Input{
		BookingState: booking.BookingState,
		PaymentState: booking.PaymentState,
		Initiator:    initiator,
		TotalMinor:   booking.TotalAmountMinor,
		PickupAt:     booking.PickupAt,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	newPayment := booking.PaymentState
	refundRef := ""
	switch decision.Action {
	case refund.ActionRelease:
		err := s.gateway.Release(ctx, booking.ID, booking.PaymentAuthorizationRef)
		if err != nil && !payments.IsKind(err, payments.KindAlreadyReleased) {
			if payments.IsKind(err, payments.KindNetwork) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "release outcome unknown, booking unchanged")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release authorization")
		}
		newPayment = enums.PaymentStateReleased
	case refund.ActionRefund:
		result, err := s.gateway.Refund(ctx, payments.RefundParams{
			BookingID:   booking.ID,
			PaymentRef:  booking.PaymentAuthorizationRef,
			AmountMinor: decision.AmountMinor,
			Currency:    booking.Currency,
			Reason:      input.Reason,
		})
		if err != nil {
			if payments.IsKind(err, payments.KindNetwork) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "refund outcome unknown, booking unchanged")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue refund")
		}
		refundRef = result.Ref
		if decision.Percentage >= 100 {
			newPayment = enums.PaymentStateRefunded
		} else {
			newPayment = enums.PaymentStatePartiallyRefunded
		}
	case refund.ActionNone:
		// Trip already started. Captured funds stay with the platform, and
		// the booking settles as a zero-amount partial refund so a cancelled
		// booking never keeps payment_state=captured.
		newPayment = enums.PaymentStatePartiallyRefunded
	}

	cancellation := models.Cancellation{
		By:                initiator,
		Reason:            input.Reason,
		At:                now,
		RefundPercentage:  decision.Percentage,
		RefundAmountMinor: decision.AmountMinor,
		RefundRef:         refundRef,
	}
	cancellationJSON, err := marshalCancellation(cancellation)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cancellation")
	}

	wasConfirmed := booking.BookingState == enums.BookingStateConfirmed
	updated, err := s.persistTransition(ctx, booking.ID, booking.BookingState, map[string]any{
		"booking_state": enums.BookingStateCancelled,
		"payment_state": newPayment,
		"cancellation":  cancellationJSON,
	}, func(ctx context.Context, tx *gorm.DB, fresh *models.Booking) error {
		repo := s.repo.WithTx(tx)
		if wasConfirmed {
			if err := repo.ReleaseVehicleHold(ctx, fresh.VehicleID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release vehicle")
			}
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCancelled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   fresh.ID,
			Actor:         actorRef(input.ActorID),
			Data: payloads.BookingCancelledEvent{
				BookingID:         fresh.ID,
				RenterID:          fresh.RenterID,
				HostID:            fresh.HostID,
				VehicleID:         fresh.VehicleID,
				CancelledBy:       initiator,
				Reason:            input.Reason,
				RefundPercentage:  decision.Percentage,
				RefundAmountMinor: decision.AmountMinor,
				CancelledAt:       now,
			},
		})
		if err != nil {
			return err
		}
		if decision.Action != refund.ActionRefund {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateBooking,
			AggregateID:   fresh.ID,
			Actor:         actorRef(input.ActorID),
			Data: payloads.RefundIssuedEvent{
				BookingID:   fresh.ID,
				RenterID:    fresh.RenterID,
				RefundRef:   refundRef,
				AmountMinor: decision.AmountMinor,
				Currency:    string(fresh.Currency),
				IssuedAt:    now,
			},
		})
	})
	if err != nil {
		if decision.Action != refund.ActionNone {
			s.logg.Error(ctx, "funds settled but cancellation not persisted", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "funds settled but booking not cancelled")
		}
		return nil, err
	}

	s.logg.Info(ctx, "booking cancelled")
	return updated, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.loadBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	switch booking.BookingState {
	case enums.BookingStateCompleted:
		return booking, nil
	case enums.BookingStateConfirmed:
	default:
		return nil, pkgerrors.New(
			pkgerrors.CodeInvalidTransition,
			"booking cannot be completed from state "+string(booking.BookingState),
		)
	}

	lateFee := int64(0)
	if input.ReturnedAt != nil && input.ReturnedAt.After(booking.ReturnAt) {
		vehicle, err := s.repo.FindVehicle(ctx, booking.VehicleID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
		}
		lateFee = LateFee(vehicle.DailyRateMinor, booking.ReturnAt, *input.ReturnedAt)
	}

	completedAt := s.now()
	updated, err := s.persistTransition(ctx, booking.ID, enums.BookingStateConfirmed, map[string]any{
		"booking_state":      enums.BookingStateCompleted,
		"late_fee_minor":     lateFee,
		"total_amount_minor": booking.TotalAmountMinor + lateFee,
	}, func(ctx context.Context, tx *gorm.DB, fresh *models.Booking) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ReleaseVehicleHold(ctx, fresh.VehicleID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release vehicle")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCompleted,
			AggregateType: enums.AggregateBooking,
			AggregateID:   fresh.ID,
			Data: payloads.BookingCompletedEvent{
				BookingID:    fresh.ID,
				RenterID:     fresh.RenterID,
				HostID:       fresh.HostID,
				VehicleID:    fresh.VehicleID,
				LateFeeMinor: lateFee,
				CompletedAt:  completedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "booking completed")
	return updated, nil
}

func (s *service) Get(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != booking.RenterID && actorID != booking.HostID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to user")
	}
	return booking, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*BookingList, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	switch input.View {
	case ListViewRenter, ListViewHost:
	case "":
		input.View = ListViewRenter
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "view must be renter or host")
	}
	list, err := s.repo.ListBookings(ctx, input)
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	return list, nil
}

// resolveHoldFailure decides what a failed vehicle hold means. A confirmed
// overlapping booking means this one lost the race for its dates; anything
// else is a transient busy signal the host can retry.
func (s *service) resolveHoldFailure(ctx context.Context, booking *models.Booking) error {
	conflict, err := s.repo.HasConfirmedOverlap(ctx, booking.VehicleID, booking.PickupAt, booking.ReturnAt, booking.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check confirmed overlap")
	}
	if conflict {
		return s.loseRace(ctx, booking)
	}
	return pkgerrors.New(pkgerrors.CodeVehicleUnavailable, "vehicle is busy, retry shortly")
}

// loseRace settles the losing side of two accepts for overlapping dates:
// the authorization is voided, the booking is declined, and the caller gets
// a race-lost error.
func (s *service) loseRace(ctx context.Context, booking *models.Booking) error {
	if _, err := s.declineBooking(ctx, booking, booking.HostID, "lost race for requested dates"); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeRaceLost, "an overlapping booking was confirmed first")
}

// declineBooking voids the hold at the processor, then persists the decline.
func (s *service) declineBooking(ctx context.Context, booking *models.Booking, actorID uuid.UUID, reason string) (*models.Booking, error) {
	err := s.gateway.Release(ctx, booking.ID, booking.PaymentAuthorizationRef)
	if err != nil && !payments.IsKind(err, payments.KindAlreadyReleased) {
		if payments.IsKind(err, payments.KindNetwork) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "release outcome unknown, booking unchanged")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release authorization")
	}

	declinedAt := s.now()
	updated, err := s.persistTransition(ctx, booking.ID, enums.BookingStatePending, map[string]any{
		"booking_state": enums.BookingStateDeclined,
		"payment_state": enums.PaymentStateReleased,
	}, func(ctx context.Context, tx *gorm.DB, fresh *models.Booking) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingDeclined,
			AggregateType: enums.AggregateBooking,
			AggregateID:   fresh.ID,
			Actor:         actorRef(actorID),
			Data: payloads.BookingDeclinedEvent{
				BookingID:  fresh.ID,
				RenterID:   fresh.RenterID,
				HostID:     fresh.HostID,
				VehicleID:  fresh.VehicleID,
				Reason:     reason,
				DeclinedAt: declinedAt,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "released but decline not persisted", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSettlementUncertain, err, "hold released but booking not declined")
	}
	return updated, nil
}

// persistTransition is the store-only retry loop around a versioned booking
// update. The booking is reloaded each attempt so a version race retries
// against fresh state; a state change between attempts aborts instead.
func (s *service) persistTransition(
	ctx context.Context,
	bookingID uuid.UUID,
	from enums.BookingState,
	updates map[string]any,
	after func(ctx context.Context, tx *gorm.DB, fresh *models.Booking) error,
) (*models.Booking, error) {
	err := s.retryStore(ctx, func(ctx context.Context) error {
		booking, err := s.loadBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.BookingState != from {
			return pkgerrors.New(
				pkgerrors.CodeInvalidTransition,
				"booking state changed to "+string(booking.BookingState)+" during the operation",
			)
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateBookingVersioned(ctx, booking.ID, booking.Version, updates); err != nil {
				return err
			}
			if after == nil {
				return nil
			}
			return after(ctx, tx, booking)
		})
	})
	if err != nil {
		return nil, err
	}
	return s.loadBooking(ctx, bookingID)
}

// retryStore retries fn on concurrency conflicts and transient store
// failures. Business rejections pass through untouched.
func (s *service) retryStore(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := s.cfg.StoreRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := s.cfg.StoreRetryWait
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(wait))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		coded := pkgerrors.As(err)
		if coded == nil {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "booking store write"))
		}
		switch coded.Code() {
		case pkgerrors.CodeConflict, pkgerrors.CodeDependency:
			return retry.RetryableError(err)
		default:
			return err
		}
	})
}

func (s *service) loadForDecision(ctx context.Context, input DecisionInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.HostID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	booking, err := s.loadBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.HostID != input.HostID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to host")
	}
	return booking, nil
}

func (s *service) loadBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindBooking(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func (s *service) releaseQuietly(ctx context.Context, bookingID uuid.UUID, authorizationRef string) {
	err := s.gateway.Release(ctx, bookingID, authorizationRef)
	if err != nil && !payments.IsKind(err, payments.KindAlreadyReleased) {
		s.logg.Error(ctx, "orphaned authorization could not be released", err)
	}
}

func (s *service) releaseHoldQuietly(ctx context.Context, vehicleID uuid.UUID) {
	if err := s.repo.ReleaseVehicleHold(ctx, vehicleID); err != nil {
		s.logg.Error(ctx, "vehicle hold could not be reverted", err)
	}
}

func actorRef(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID}
}

// marshalCancellation renders the jsonb column value for a versioned update.
func marshalCancellation(c models.Cancellation) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
