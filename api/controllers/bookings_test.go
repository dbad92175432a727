package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/api/middleware"
	"github.com/driveloop/driveloop-backend/internal/booking"
	"github.com/driveloop/driveloop-backend/pkg/db/models"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
)

type testBookingService struct {
	createFn   func(ctx context.Context, input booking.CreateBookingInput) (*models.Booking, error)
	acceptFn   func(ctx context.Context, input booking.DecisionInput) (*models.Booking, error)
	declineFn  func(ctx context.Context, input booking.DecisionInput) (*models.Booking, error)
	cancelFn   func(ctx context.Context, input booking.CancelInput) (*models.Booking, error)
	completeFn func(ctx context.Context, input booking.CompleteInput) (*models.Booking, error)
	getFn      func(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)
	listFn     func(ctx context.Context, input booking.ListInput) (*booking.BookingList, error)
}

func (s *testBookingService) Create(ctx context.Context, input booking.CreateBookingInput) (*models.Booking, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) Accept(ctx context.Context, input booking.DecisionInput) (*models.Booking, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, input)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) Decline(ctx context.Context, input booking.DecisionInput) (*models.Booking, error) {
	if s.declineFn != nil {
		return s.declineFn(ctx, input)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) Cancel(ctx context.Context, input booking.CancelInput) (*models.Booking, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, input)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) Complete(ctx context.Context, input booking.CompleteInput) (*models.Booking, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, input)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) Get(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	if s.getFn != nil {
		return s.getFn(ctx, bookingID, actorID)
	}
	return &models.Booking{}, nil
}

func (s *testBookingService) List(ctx context.Context, input booking.ListInput) (*booking.BookingList, error) {
	if s.listFn != nil {
		return s.listFn(ctx, input)
	}
	return &booking.BookingList{}, nil
}

func testLogg() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestCreateBookingMapsRequest(t *testing.T) {
	renterID := uuid.New()
	vehicleID := uuid.New()
	pickup := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	ret := pickup.Add(72 * time.Hour)

	var got booking.CreateBookingInput
	svc := &testBookingService{
		createFn: func(ctx context.Context, input booking.CreateBookingInput) (*models.Booking, error) {
			got = input
			return &models.Booking{ID: uuid.New()}, nil
		},
	}

	body := `{"vehicle_id":"` + vehicleID.String() + `","pickup_at":"` + pickup.Format(time.RFC3339) +
		`","return_at":"` + ret.Format(time.RFC3339) + `","source_id":"cnon:card-ok","note":"weekend trip"}`
	req := authedRequest(http.MethodPost, "/api/v1/bookings", body, renterID)

	resp := httptest.NewRecorder()
	CreateBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.RenterID != renterID || got.VehicleID != vehicleID {
		t.Fatalf("unexpected ids in input: %+v", got)
	}
	if !got.PickupAt.Equal(pickup) || !got.ReturnAt.Equal(ret) {
		t.Fatalf("unexpected window in input: %+v", got)
	}
	if got.SourceID != "cnon:card-ok" || got.Note != "weekend trip" {
		t.Fatalf("unexpected payment fields: %+v", got)
	}
}

func TestCreateBookingRejectsMissingSource(t *testing.T) {
	req := authedRequest(http.MethodPost, "/api/v1/bookings",
		`{"vehicle_id":"`+uuid.NewString()+`","pickup_at":"2026-09-01T09:00:00Z","return_at":"2026-09-03T09:00:00Z"}`,
		uuid.New())

	resp := httptest.NewRecorder()
	CreateBooking(&testBookingService{}, testLogg())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateBookingRequiresUserContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	CreateBooking(&testBookingService{}, testLogg())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAcceptBookingUsesRouteParamAndActor(t *testing.T) {
	hostID := uuid.New()
	bookingID := uuid.New()

	var got booking.DecisionInput
	svc := &testBookingService{
		acceptFn: func(ctx context.Context, input booking.DecisionInput) (*models.Booking, error) {
			got = input
			return &models.Booking{ID: bookingID}, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/accept", "", hostID)
	req = addRouteParam(req, "bookingId", bookingID.String())

	resp := httptest.NewRecorder()
	AcceptBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.BookingID != bookingID || got.HostID != hostID {
		t.Fatalf("unexpected decision input: %+v", got)
	}
}

func TestDeclineBookingPassesReason(t *testing.T) {
	var got booking.DecisionInput
	svc := &testBookingService{
		declineFn: func(ctx context.Context, input booking.DecisionInput) (*models.Booking, error) {
			got = input
			return &models.Booking{}, nil
		},
	}

	bookingID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/decline",
		`{"reason":"vehicle in the shop"}`, uuid.New())
	req = addRouteParam(req, "bookingId", bookingID.String())

	resp := httptest.NewRecorder()
	DeclineBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.Reason != "vehicle in the shop" {
		t.Fatalf("unexpected reason %q", got.Reason)
	}
}

func TestCancelBookingSurfacesServiceErrors(t *testing.T) {
	svc := &testBookingService{
		cancelFn: func(ctx context.Context, input booking.CancelInput) (*models.Booking, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "booking already completed")
		},
	}

	bookingID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/cancel", `{}`, uuid.New())
	req = addRouteParam(req, "bookingId", bookingID.String())

	resp := httptest.NewRecorder()
	CancelBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestCompleteBookingParsesReturnedAt(t *testing.T) {
	returned := time.Date(2026, 9, 3, 15, 30, 0, 0, time.UTC)

	var got booking.CompleteInput
	svc := &testBookingService{
		completeFn: func(ctx context.Context, input booking.CompleteInput) (*models.Booking, error) {
			got = input
			return &models.Booking{}, nil
		},
	}

	bookingID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/complete",
		`{"returned_at":"`+returned.Format(time.RFC3339)+`"}`, uuid.New())
	req = addRouteParam(req, "bookingId", bookingID.String())

	resp := httptest.NewRecorder()
	CompleteBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.ReturnedAt == nil || !got.ReturnedAt.Equal(returned) {
		t.Fatalf("unexpected returned_at: %+v", got.ReturnedAt)
	}
}

func TestListBookingsParsesFilters(t *testing.T) {
	userID := uuid.New()

	var got booking.ListInput
	svc := &testBookingService{
		listFn: func(ctx context.Context, input booking.ListInput) (*booking.BookingList, error) {
			got = input
			return &booking.BookingList{}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/bookings?view=host&state=pending&limit=10", "", userID)
	resp := httptest.NewRecorder()
	ListBookings(svc, testLogg())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.UserID != userID || got.View != booking.ListViewHost {
		t.Fatalf("unexpected list input: %+v", got)
	}
	if got.State == nil || string(*got.State) != "pending" {
		t.Fatalf("expected pending state filter, got %+v", got.State)
	}
	if got.Params.Limit != 10 {
		t.Fatalf("unexpected limit %d", got.Params.Limit)
	}
}

func TestListBookingsRejectsUnknownState(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/bookings?state=galloping", "", uuid.New())
	resp := httptest.NewRecorder()
	ListBookings(&testBookingService{}, testLogg())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetBookingReturnsEnvelope(t *testing.T) {
	bookingID := uuid.New()
	svc := &testBookingService{
		getFn: func(ctx context.Context, gotBooking, gotActor uuid.UUID) (*models.Booking, error) {
			if gotBooking != bookingID {
				t.Fatalf("unexpected booking id %s", gotBooking)
			}
			return &models.Booking{ID: bookingID}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/bookings/"+bookingID.String(), "", uuid.New())
	req = addRouteParam(req, "bookingId", bookingID.String())

	resp := httptest.NewRecorder()
	GetBooking(svc, testLogg())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data models.Booking `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != bookingID {
		t.Fatalf("unexpected booking in response: %s", envelope.Data.ID)
	}
}
