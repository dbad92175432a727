package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/driveloop/driveloop-backend/pkg/config"
)

type scriptedGateway struct {
	captureErrs []error
	calls       int
}

func (s *scriptedGateway) Authorize(ctx context.Context, params AuthorizeParams) (*Authorization, error) {
	return &Authorization{Ref: "auth-1"}, nil
}

func (s *scriptedGateway) Capture(ctx context.Context, bookingID uuid.UUID, ref string) error {
	idx := s.calls
	s.calls++
	if idx < len(s.captureErrs) {
		return s.captureErrs[idx]
	}
	return nil
}

func (s *scriptedGateway) Release(ctx context.Context, bookingID uuid.UUID, ref string) error {
	return nil
}

func (s *scriptedGateway) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	return &RefundResult{Ref: "refund-1"}, nil
}

func retryCfg() config.PaymentsConfig {
	return config.PaymentsConfig{
		RetryBaseWait: time.Millisecond,
		MaxRetries:    3,
	}
}

func TestRetryRecoversFromNetworkFailure(t *testing.T) {
	stub := &scriptedGateway{captureErrs: []error{
		newError(KindNetwork, OpCapture, "timeout", nil),
		newError(KindNetwork, OpCapture, "timeout", nil),
	}}
	g := NewRetryingGateway(stub, retryCfg())

	if err := g.Capture(context.Background(), uuid.New(), "auth-1"); err != nil {
		t.Fatalf("expected capture to recover, got %v", err)
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.calls)
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	stub := &scriptedGateway{captureErrs: []error{
		newError(KindNetwork, OpCapture, "timeout", nil),
		newError(KindNetwork, OpCapture, "timeout", nil),
		newError(KindNetwork, OpCapture, "timeout", nil),
		newError(KindNetwork, OpCapture, "timeout", nil),
	}}
	g := NewRetryingGateway(stub, retryCfg())

	err := g.Capture(context.Background(), uuid.New(), "auth-1")
	if !IsKind(err, KindNetwork) {
		t.Fatalf("expected network error after exhaustion, got %v", err)
	}
	if stub.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", stub.calls)
	}
}

func TestRetryDoesNotRepeatProcessorRejections(t *testing.T) {
	stub := &scriptedGateway{captureErrs: []error{
		newError(KindDeclined, OpCapture, "declined", nil),
	}}
	g := NewRetryingGateway(stub, retryCfg())

	err := g.Capture(context.Background(), uuid.New(), "auth-1")
	if !IsKind(err, KindDeclined) {
		t.Fatalf("expected declined error, got %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("declined calls must not retry, got %d attempts", stub.calls)
	}
}

func TestIdempotencyKeyIsDeterministicPerOperation(t *testing.T) {
	id := uuid.New()
	if IdempotencyKey(id, OpAuthorize) != IdempotencyKey(id, OpAuthorize) {
		t.Fatal("same booking and operation must produce the same key")
	}
	if IdempotencyKey(id, OpAuthorize) == IdempotencyKey(id, OpCapture) {
		t.Fatal("different operations must produce different keys")
	}
}
