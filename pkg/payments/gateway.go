package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/enums"
)

// Operation identifies a gateway call for idempotency keys and metrics.
type Operation string

const (
	OpAuthorize Operation = "authorize"
	OpCapture   Operation = "capture"
	OpRelease   Operation = "release"
	OpRefund    Operation = "refund"
)

// ErrorKind classifies gateway failures so callers can branch on them
// without knowing which processor produced the error.
type ErrorKind string

const (
	// KindDeclined means the processor rejected the charge. Not retryable.
	KindDeclined ErrorKind = "declined"
	// KindAlreadyCaptured means the funds were captured by an earlier call.
	KindAlreadyCaptured ErrorKind = "already_captured"
	// KindAuthorizationExpired means the hold lapsed before capture.
	KindAuthorizationExpired ErrorKind = "authorization_expired"
	// KindAlreadyReleased means the hold was voided by an earlier call.
	KindAlreadyReleased ErrorKind = "already_released"
	// KindInsufficientCaptured means the refund exceeds the captured amount.
	KindInsufficientCaptured ErrorKind = "insufficient_captured"
	// KindNetwork covers timeouts and transport failures where the outcome
	// at the processor is unknown. Safe to retry with the same key.
	KindNetwork ErrorKind = "network"
)

// Error is the typed failure surface of every Gateway call.
type Error struct {
	Kind  ErrorKind
	Op    Operation
	Msg   string
	cause error
}

func newError(kind ErrorKind, op Operation, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("payment %s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}

// AuthorizeParams describes a hold request against the renter's payment method.
type AuthorizeParams struct {
	BookingID   uuid.UUID
	SourceID    string
	CustomerID  string
	AmountMinor int64
	Currency    enums.Currency
	Note        string
}

// Authorization is the processor-side handle for a successful hold.
type Authorization struct {
	Ref    string
	Status string
}

// RefundParams describes a full or partial refund against captured funds.
type RefundParams struct {
	BookingID   uuid.UUID
	PaymentRef  string
	AmountMinor int64
	Currency    enums.Currency
	Reason      string
}

// RefundResult is the processor-side handle for an issued refund.
type RefundResult struct {
	Ref    string
	Status string
}

// Gateway is the processor surface the booking orchestrator depends on.
// Implementations must make every call idempotent per (booking, operation)
// so that a retry after a network failure cannot double-charge.
type Gateway interface {
	Authorize(ctx context.Context, params AuthorizeParams) (*Authorization, error)
	Capture(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error
	Release(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error
	Refund(ctx context.Context, params RefundParams) (*RefundResult, error)
}

// IdempotencyKey derives the deterministic processor key for one logical
// operation on one booking. Repeating the call reuses the same key.
func IdempotencyKey(bookingID uuid.UUID, op Operation) string {
	return fmt.Sprintf("%s-%s", bookingID.String(), op)
}
