package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/driveloop/driveloop-backend/pkg/config"
	"github.com/driveloop/driveloop-backend/pkg/enums"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/metrics"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// SquareGateway implements Gateway on top of Square's Payments and Refunds
// APIs. Authorizations are delayed-capture payments; Capture completes them,
// Release cancels them.
type SquareGateway struct {
	sdk        *sqclient.Client
	locationID string
	currency   enums.Currency
	logger     *logger.Logger
	metrics    *metrics.PaymentMetrics
}

// NewSquareGateway initializes the Square wrapper and validates credentials.
func NewSquareGateway(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger, pm *metrics.PaymentMetrics) (*SquareGateway, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	g := &SquareGateway{
		sdk:        sdk,
		locationID: locationID,
		currency:   enums.Currency(strings.ToUpper(strings.TrimSpace(cfg.Currency))),
		logger:     logg,
		metrics:    pm,
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("square gateway initialized (%s)", env))
	}
	return g, nil
}

// Authorize places a delayed-capture hold for the booking total.
func (g *SquareGateway) Authorize(ctx context.Context, params AuthorizeParams) (*Authorization, error) {
	start := time.Now()
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: IdempotencyKey(params.BookingID, OpAuthorize),
		SourceID:       params.SourceID,
		LocationID:     ptrString(g.locationID),
		Autocomplete:   ptrBool(false),
		ReferenceID:    ptrString(params.BookingID.String()),
		AmountMoney:    moneyPtr(params.AmountMinor, g.currencyFor(params.Currency)),
	}
	if trimmed := strings.TrimSpace(params.CustomerID); trimmed != "" {
		req.CustomerID = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(params.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}

	g.log(ctx, "request", OpAuthorize, map[string]any{
		"booking_id": params.BookingID.String(),
		"amount":     params.AmountMinor,
	})

	resp, err := g.sdk.Payments.Create(ctx, req)
	if err != nil {
		g.observe(OpAuthorize, "error", start)
		return nil, g.mapError(ctx, err, OpAuthorize)
	}

	payment := resp.GetPayment()
	g.observe(OpAuthorize, "ok", start)
	g.log(ctx, "response", OpAuthorize, map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return &Authorization{
		Ref:    stringValue(payment.GetID()),
		Status: stringValue(payment.GetStatus()),
	}, nil
}

// Capture completes a previously authorized payment.
func (g *SquareGateway) Capture(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	start := time.Now()
	g.log(ctx, "request", OpCapture, map[string]any{
		"booking_id": bookingID.String(),
		"payment_id": authorizationRef,
	})

	_, err := g.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{
		PaymentID: authorizationRef,
	})
	if err != nil {
		g.observe(OpCapture, "error", start)
		return g.mapError(ctx, err, OpCapture)
	}

	g.observe(OpCapture, "ok", start)
	g.log(ctx, "response", OpCapture, map[string]any{"payment_id": authorizationRef})
	return nil
}

// Release voids a previously authorized payment without capturing it.
func (g *SquareGateway) Release(ctx context.Context, bookingID uuid.UUID, authorizationRef string) error {
	start := time.Now()
	g.log(ctx, "request", OpRelease, map[string]any{
		"booking_id": bookingID.String(),
		"payment_id": authorizationRef,
	})

	_, err := g.sdk.Payments.Cancel(ctx, &sq.CancelPaymentsRequest{
		PaymentID: authorizationRef,
	})
	if err != nil {
		g.observe(OpRelease, "error", start)
		return g.mapError(ctx, err, OpRelease)
	}

	g.observe(OpRelease, "ok", start)
	g.log(ctx, "response", OpRelease, map[string]any{"payment_id": authorizationRef})
	return nil
}

// Refund returns part or all of the captured funds to the renter.
func (g *SquareGateway) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	start := time.Now()
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: IdempotencyKey(params.BookingID, OpRefund),
		PaymentID:      ptrString(params.PaymentRef),
		AmountMoney:    moneyPtr(params.AmountMinor, g.currencyFor(params.Currency)),
	}
	if trimmed := strings.TrimSpace(params.Reason); trimmed != "" {
		req.Reason = ptrString(trimmed)
	}

	g.log(ctx, "request", OpRefund, map[string]any{
		"booking_id": params.BookingID.String(),
		"payment_id": params.PaymentRef,
		"amount":     params.AmountMinor,
	})

	resp, err := g.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		g.observe(OpRefund, "error", start)
		return nil, g.mapError(ctx, err, OpRefund)
	}

	refund := resp.GetRefund()
	g.observe(OpRefund, "ok", start)
	g.log(ctx, "response", OpRefund, map[string]any{
		"refund_id": refund.GetID(),
		"status":    stringValue(refund.GetStatus()),
	})
	return &RefundResult{
		Ref:    refund.GetID(),
		Status: stringValue(refund.GetStatus()),
	}, nil
}

func (g *SquareGateway) currencyFor(currency enums.Currency) string {
	if currency != "" {
		return string(currency)
	}
	return string(g.currency)
}

func (g *SquareGateway) observe(op Operation, result string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveCall(string(op), result, time.Since(start))
}

func (g *SquareGateway) log(ctx context.Context, phase string, op Operation, fields map[string]any) {
	if g == nil || g.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": string(op),
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = g.logger.WithFields(ctx, logFields)
	g.logger.Info(ctx, fmt.Sprintf("square %s", phase))
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "source"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

// mapError translates SDK failures into typed gateway errors. Anything that
// is not a definitive processor rejection is treated as a network failure so
// the caller retries with the same idempotency key.
func (g *SquareGateway) mapError(ctx context.Context, err error, op Operation) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return newError(KindNetwork, op, "transport failure", err)
	}
	if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
		return newError(KindNetwork, op, fmt.Sprintf("processor returned %d", apiErr.StatusCode), err)
	}

	kind := classifyErrors(op, extractSquareErrors(apiErr))
	if g.logger != nil {
		g.logger.Warn(g.logger.WithFields(ctx, map[string]any{
			"operation": string(op),
			"kind":      string(kind),
			"status":    apiErr.StatusCode,
		}), "square call rejected")
	}
	return newError(kind, op, fmt.Sprintf("processor rejected %s", op), err)
}

func classifyErrors(op Operation, sqErrs []*sq.Error) ErrorKind {
	for _, sqErr := range sqErrs {
		if sqErr == nil {
			continue
		}
		if sqErr.Category == sq.ErrorCategoryPaymentMethodError {
			return KindDeclined
		}
		switch string(sqErr.Code) {
		case "GENERIC_DECLINE", "CARD_DECLINED", "INSUFFICIENT_FUNDS", "CVV_FAILURE", "ADDRESS_VERIFICATION_FAILURE", "CARD_EXPIRED":
			return KindDeclined
		case "REFUND_AMOUNT_INVALID":
			return KindInsufficientCaptured
		case "INVALID_STATE", "INVALID_CARD_DATA":
			return stateKindFor(op)
		case "NOT_FOUND", "PAYMENT_NOT_FOUND":
			if op == OpCapture {
				return KindAuthorizationExpired
			}
		}
	}
	if op == OpAuthorize {
		return KindDeclined
	}
	return stateKindFor(op)
}

func stateKindFor(op Operation) ErrorKind {
	switch op {
	case OpCapture:
		return KindAlreadyCaptured
	case OpRelease:
		return KindAlreadyReleased
	case OpRefund:
		return KindInsufficientCaptured
	default:
		return KindDeclined
	}
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func ptrBool(value bool) *bool {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "PHP"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
