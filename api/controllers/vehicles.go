package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/api/responses"
	"github.com/driveloop/driveloop-backend/api/validators"
	"github.com/driveloop/driveloop-backend/internal/availability"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
)

const maxAvailabilityRange = 90 * 24 * time.Hour

type vehicleAvailabilityResponse struct {
	VehicleID     uuid.UUID             `json:"vehicle_id"`
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	BookedWindows []availability.Window `json:"booked_windows"`
}

// VehicleAvailability returns the booked windows that block new requests on a
// vehicle inside the queried range.
func VehicleAvailability(checker *availability.Checker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability checker unavailable"))
			return
		}

		rawVehicleID := strings.TrimSpace(chi.URLParam(r, "vehicleId"))
		if rawVehicleID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required"))
			return
		}
		vehicleID, err := uuid.Parse(rawVehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
			return
		}

		from, err := validators.ParseQueryTime(r, "from", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !to.After(from) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "to must be after from"))
			return
		}
		if to.Sub(from) > maxAvailabilityRange {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "availability range is limited to 90 days"))
			return
		}

		windows, err := checker.BookedWindows(r.Context(), vehicleID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query booked windows"))
			return
		}

		responses.WriteSuccess(w, vehicleAvailabilityResponse{
			VehicleID:     vehicleID,
			From:          from,
			To:            to,
			BookedWindows: windows,
		})
	}
}
