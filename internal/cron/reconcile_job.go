package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/driveloop/driveloop-backend/pkg/enums"
	"github.com/driveloop/driveloop-backend/pkg/logger"
)

// ReconcileJobParams configure the vehicle state reconcile job.
type ReconcileJobParams struct {
	Logger     *logger.Logger
	Repository reconcileRepo
}

type reconcileRepo interface {
	FindVehicleIDsToRelease(ctx context.Context) ([]uuid.UUID, error)
	FindVehicleIDsToHold(ctx context.Context) ([]uuid.UUID, error)
	SetVehicleState(ctx context.Context, vehicleID uuid.UUID, from, to enums.OperationalState) (bool, error)
}

// NewReconcileJob builds the job that repairs drift between the vehicle
// operational state and the booking table. A crash between a payment capture
// and the booking update, or between a completion and the hold release, can
// leave the two out of sync in either direction.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	return &reconcileJob{
		logg: params.Logger,
		repo: params.Repository,
	}, nil
}

type reconcileJob struct {
	logg *logger.Logger
	repo reconcileRepo
}

func (j *reconcileJob) Name() string { return "vehicle-state-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	var errs []error

	released, err := j.releaseOrphanedHolds(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	held, err := j.restoreMissingHolds(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released": released,
		"held":     held,
	})
	j.logg.Info(logCtx, "vehicle state reconcile complete")
	return multierr.Combine(errs...)
}

// releaseOrphanedHolds frees vehicles stuck on_trip with no confirmed booking
// backing the hold.
func (j *reconcileJob) releaseOrphanedHolds(ctx context.Context) (int, error) {
	ids, err := j.repo.FindVehicleIDsToRelease(ctx)
	if err != nil {
		return 0, fmt.Errorf("query orphaned holds: %w", err)
	}
	released := 0
	for _, id := range ids {
		changed, err := j.repo.SetVehicleState(ctx, id, enums.OperationalStateOnTrip, enums.OperationalStateActive)
		if err != nil {
			return released, fmt.Errorf("release vehicle %s: %w", id, err)
		}
		if changed {
			vehicleCtx := j.logg.WithVehicleID(ctx, id.String())
			j.logg.Warn(vehicleCtx, "released orphaned vehicle hold")
			released++
		}
	}
	return released, nil
}

// restoreMissingHolds re-marks vehicles active despite a confirmed booking,
// which happens when a hold release raced a late confirmation.
func (j *reconcileJob) restoreMissingHolds(ctx context.Context) (int, error) {
	ids, err := j.repo.FindVehicleIDsToHold(ctx)
	if err != nil {
		return 0, fmt.Errorf("query missing holds: %w", err)
	}
	held := 0
	for _, id := range ids {
		changed, err := j.repo.SetVehicleState(ctx, id, enums.OperationalStateActive, enums.OperationalStateOnTrip)
		if err != nil {
			return held, fmt.Errorf("hold vehicle %s: %w", id, err)
		}
		if changed {
			vehicleCtx := j.logg.WithVehicleID(ctx, id.String())
			j.logg.Warn(vehicleCtx, "restored vehicle hold for confirmed booking")
			held++
		}
	}
	return held, nil
}
