package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
)

func TestMapErrorTransportFailure(t *testing.T) {
	g := &SquareGateway{}
	mapped := g.mapError(context.Background(), errors.New("dial tcp: i/o timeout"), OpAuthorize)
	if !IsKind(mapped, KindNetwork) {
		t.Fatalf("expected network kind, got %v", mapped)
	}
}

func TestMapErrorServerSideFailure(t *testing.T) {
	g := &SquareGateway{}
	apiErr := sqcore.NewAPIError(http.StatusBadGateway, errors.New(`{"errors":[]}`))
	mapped := g.mapError(context.Background(), apiErr, OpCapture)
	if !IsKind(mapped, KindNetwork) {
		t.Fatalf("expected network kind for 5xx, got %v", mapped)
	}
}

func TestMapErrorRateLimited(t *testing.T) {
	g := &SquareGateway{}
	apiErr := sqcore.NewAPIError(http.StatusTooManyRequests, errors.New(`{"errors":[{"category":"RATE_LIMIT_ERROR","code":"RATE_LIMITED"}]}`))
	mapped := g.mapError(context.Background(), apiErr, OpRefund)
	if !IsKind(mapped, KindNetwork) {
		t.Fatalf("expected network kind for 429, got %v", mapped)
	}
}

func TestMapErrorDecline(t *testing.T) {
	g := &SquareGateway{}
	table := []struct {
		name    string
		payload string
	}{
		{"generic decline", `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"GENERIC_DECLINE"}]}`},
		{"insufficient funds", `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"INSUFFICIENT_FUNDS"}]}`},
		{"cvv failure", `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CVV_FAILURE"}]}`},
	}
	for _, tt := range table {
		apiErr := sqcore.NewAPIError(http.StatusPaymentRequired, errors.New(tt.payload))
		mapped := g.mapError(context.Background(), apiErr, OpAuthorize)
		if !IsKind(mapped, KindDeclined) {
			t.Fatalf("%s: expected declined kind, got %v", tt.name, mapped)
		}
	}
}

func TestMapErrorStateConflicts(t *testing.T) {
	g := &SquareGateway{}
	table := []struct {
		name    string
		op      Operation
		payload string
		want    ErrorKind
	}{
		{"capture twice", OpCapture, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"INVALID_STATE"}]}`, KindAlreadyCaptured},
		{"release twice", OpRelease, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"INVALID_STATE"}]}`, KindAlreadyReleased},
		{"capture expired hold", OpCapture, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND"}]}`, KindAuthorizationExpired},
		{"refund over captured", OpRefund, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"REFUND_AMOUNT_INVALID"}]}`, KindInsufficientCaptured},
	}
	for _, tt := range table {
		apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(tt.payload))
		mapped := g.mapError(context.Background(), apiErr, tt.op)
		if !IsKind(mapped, tt.want) {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.want, mapped)
		}
	}
}

func TestRedact(t *testing.T) {
	if out := redact("source_id", "cnon:abc"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if out := redact("booking_id", "b-1"); out != "b-1" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestExtractSquareErrorsMalformedPayload(t *testing.T) {
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New("not json"))
	if got := extractSquareErrors(apiErr); got != nil {
		t.Fatalf("expected nil for malformed payload, got %v", got)
	}
}

func TestRefundResultFieldMapping(t *testing.T) {
	// PaymentRefund.GetID returns a plain string while GetStatus returns a
	// pointer; the result mapping must respect both signatures.
	refund := &sq.PaymentRefund{ID: "rf-123", Status: sq.String("COMPLETED")}

	result := RefundResult{
		Ref:    refund.GetID(),
		Status: stringValue(refund.GetStatus()),
	}
	if result.Ref != "rf-123" {
		t.Fatalf("unexpected refund ref %q", result.Ref)
	}
	if result.Status != "COMPLETED" {
		t.Fatalf("unexpected refund status %q", result.Status)
	}

	var missing *sq.PaymentRefund
	if missing.GetID() != "" || stringValue(missing.GetStatus()) != "" {
		t.Fatal("nil refund should map to empty fields")
	}
}
