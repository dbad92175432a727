package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/api/middleware"
	"github.com/driveloop/driveloop-backend/api/responses"
	"github.com/driveloop/driveloop-backend/api/validators"
	"github.com/driveloop/driveloop-backend/internal/booking"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/pagination"
)

type createBookingRequest struct {
	VehicleID  string `json:"vehicle_id" validate:"required,uuid"`
	PickupAt   string `json:"pickup_at" validate:"required"`
	ReturnAt   string `json:"return_at" validate:"required"`
	SourceID   string `json:"source_id" validate:"required"`
	CustomerID string `json:"customer_id"`
	Note       string `json:"note" validate:"max=500"`
}

type decisionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type completeBookingRequest struct {
	ReturnedAt string `json:"returned_at"`
}

// CreateBooking places a pending booking with an authorization hold on the
// renter's payment method.
func CreateBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vehicleID, err := uuid.Parse(payload.VehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
			return
		}
		pickupAt, err := parseTimestamp(payload.PickupAt, "pickup_at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnAt, err := parseTimestamp(payload.ReturnAt, "return_at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), booking.CreateBookingInput{
			RenterID:   actorID,
			VehicleID:  vehicleID,
			PickupAt:   pickupAt,
			ReturnAt:   returnAt,
			SourceID:   payload.SourceID,
			CustomerID: payload.CustomerID,
			Note:       payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListBookings pages through the caller's bookings as renter or host.
func ListBookings(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := booking.ListInput{
			UserID: actorID,
			View:   booking.ListView(strings.TrimSpace(r.URL.Query().Get("view"))),
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			state, err := enums.ParseBookingState(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid state filter"))
				return
			}
			input.State = &state
		}

		list, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetBooking returns one booking visible to the renter or the host.
func GetBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		found, err := svc.Get(r.Context(), bookingID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, found)
	}
}

// AcceptBooking confirms a pending booking and captures the payment.
func AcceptBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		input, err := decisionInputFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmed, err := svc.Accept(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmed)
	}
}

// DeclineBooking rejects a pending booking and releases the payment hold.
func DeclineBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		input, err := decisionInputFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		declined, err := svc.Decline(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, declined)
	}
}

// CancelBooking cancels a booking for the renter or the host; the refund
// schedule depends on who cancels and how close to pickup.
func CancelBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), booking.CancelInput{
			BookingID: bookingID,
			ActorID:   actorID,
			Reason:    payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelled)
	}
}

// CompleteBooking closes out a confirmed trip, charging a late fee when the
// reported return time is past schedule.
func CompleteBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		bookingID, err := bookingIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload completeBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := booking.CompleteInput{BookingID: bookingID}
		if payload.ReturnedAt != "" {
			returnedAt, err := parseTimestamp(payload.ReturnedAt, "returned_at")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.ReturnedAt = &returnedAt
		}

		completed, err := svc.Complete(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, completed)
	}
}

func decisionInputFrom(r *http.Request) (booking.DecisionInput, error) {
	actorID, err := actorFromContext(r)
	if err != nil {
		return booking.DecisionInput{}, err
	}
	bookingID, err := bookingIDParam(r)
	if err != nil {
		return booking.DecisionInput{}, err
	}

	var payload decisionRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return booking.DecisionInput{}, err
	}

	return booking.DecisionInput{
		BookingID: bookingID,
		HostID:    actorID,
		Reason:    payload.Reason,
	}, nil
}

func actorFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return actorID, nil
}

func bookingIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	bookingID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return bookingID, nil
}

func parseTimestamp(raw, field string) (time.Time, error) {
	value, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "timestamp must be RFC 3339").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}
