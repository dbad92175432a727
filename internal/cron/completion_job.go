package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/driveloop/driveloop-backend/internal/booking"
	"github.com/driveloop/driveloop-backend/pkg/db/models"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
	"github.com/driveloop/driveloop-backend/pkg/logger"
)

const (
	defaultCompletionGrace = time.Hour
	completionBatchSize    = 100
)

// CompletionJobParams configure the automatic trip completion job.
type CompletionJobParams struct {
	Logger    *logger.Logger
	Reader    completableReader
	Bookings  bookingCompleter
	Grace     time.Duration
	BatchSize int
}

type completableReader interface {
	FindCompletableBookings(ctx context.Context, returnedBefore time.Time, limit int) ([]models.Booking, error)
}

type bookingCompleter interface {
	Complete(ctx context.Context, input booking.CompleteInput) (*models.Booking, error)
}

// NewCompletionJob builds the job that closes out confirmed bookings whose
// return time plus the grace window has passed without a manual completion.
func NewCompletionJob(params CompletionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("completable bookings reader required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking completer required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultCompletionGrace
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = completionBatchSize
	}
	return &completionJob{
		logg:      params.Logger,
		reader:    params.Reader,
		bookings:  params.Bookings,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type completionJob struct {
	logg      *logger.Logger
	reader    completableReader
	bookings  bookingCompleter
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *completionJob) Name() string { return "booking-completion" }

func (j *completionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	rows, err := j.reader.FindCompletableBookings(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query completable bookings: %w", err)
	}

	var errs []error
	completed := 0
	for _, row := range rows {
		bookingCtx := j.logg.WithBookingID(ctx, row.ID.String())
		// ReturnedAt stays nil so no late fee is assessed; the grace window
		// already absorbed the overrun before we got here.
		_, err := j.bookings.Complete(bookingCtx, booking.CompleteInput{BookingID: row.ID})
		if err != nil {
			// A concurrent manual completion or cancellation won the race.
			if pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
				j.logg.Info(bookingCtx, "booking no longer completable; skipping")
				continue
			}
			j.logg.Error(bookingCtx, "auto completion failed", err)
			errs = append(errs, fmt.Errorf("complete booking %s: %w", row.ID, err))
			continue
		}
		completed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"candidate": len(rows),
		"completed": completed,
	})
	j.logg.Info(logCtx, "booking completion sweep complete")
	return multierr.Combine(errs...)
}
