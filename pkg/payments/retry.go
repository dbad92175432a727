package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/driveloop/driveloop-backend/pkg/config"
)

// RetryingGateway wraps a Gateway and retries calls that failed with a
// network-kind error. Processor rejections pass through untouched. The
// wrapped gateway's per-operation idempotency keys make retries safe.
type RetryingGateway struct {
	inner       Gateway
	baseWait    time.Duration
	maxRetries  uint64
	callTimeout time.Duration
}

// NewRetryingGateway builds the retry decorator from the payments config.
func NewRetryingGateway(inner Gateway, cfg config.PaymentsConfig) *RetryingGateway {
	baseWait := cfg.RetryBaseWait
	if baseWait <= 0 {
		baseWait = 250 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 4
	}
	return &RetryingGateway{
		inner:       inner,
		baseWait:    baseWait,
		maxRetries:  uint64(maxRetries),
		callTimeout: cfg.CallTimeout,
	}
}

func (r *RetryingGateway) Authorize(ctx context.Context, params AuthorizeParams) (*Authorization, error) {
	var auth *Authorization
	err := r.do(ctx, func(ctx context.Context) error {
		var callErr error
		auth, callErr = r.inner.Authorize(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

func (r *RetryingGateway) Capture(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.Capture(ctx, bookingID, authorizationRef)
	})
}

func (r *RetryingGateway) Release(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.Release(ctx, bookingID, authorizationRef)
	})
}

func (r *RetryingGateway) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	var result *RefundResult
	err := r.do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.inner.Refund(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RetryingGateway) do(ctx context.Context, call func(context.Context) error) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseWait))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx := ctx
		if r.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
			defer cancel()
		}
		err := call(callCtx)
		if err == nil {
			return nil
		}
		if IsKind(err, KindNetwork) {
			return retry.RetryableError(err)
		}
		return err
	})
}
