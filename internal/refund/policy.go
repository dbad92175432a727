// Package refund computes the cancellation payout for a booking. The
// evaluator is pure: it never touches the store or the processor, it only
// maps booking facts to a refund decision.
package refund

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/driveloop/driveloop-backend/pkg/enums"
	pkgerrors "github.com/driveloop/driveloop-backend/pkg/errors"
)

// Action tells the orchestrator which processor call settles the cancellation.
type Action string

const (
	// ActionRelease voids the uncaptured hold. No money moved, nothing to refund.
	ActionRelease Action = "release"
	// ActionRefund returns AmountMinor of the captured funds.
	ActionRefund Action = "refund"
	// ActionNone keeps all captured funds with the platform and host.
	ActionNone Action = "none"
)

// Input is the set of booking facts the schedule depends on.
type Input struct {
	BookingState enums.BookingState
	PaymentState enums.PaymentState
	Initiator    enums.CancellationInitiator
	TotalMinor   int64
	PickupAt     time.Time
	Now          time.Time
}

// Decision is the evaluated outcome. AmountMinor is zero unless Action is
// ActionRefund.
type Decision struct {
	Action      Action
	Percentage  int
	AmountMinor int64
}

// Tier boundaries in hours before pickup. A cancellation at exactly the
// boundary falls into the more generous tier.
const (
	fullRefundHours   = 24
	threeQuarterHours = 12
	halfRefundHours   = 6
	fullPercent       = 100
	threeQuarterPct   = 75
	halfPercent       = 50
	quarterPercent    = 25
)

// Evaluate returns the refund decision for cancelling the given booking.
// Only pending and confirmed bookings can be cancelled; terminal states are
// rejected so callers cannot re-settle a finished booking.
func Evaluate(in Input) (Decision, error) {
	switch in.BookingState {
	case enums.BookingStatePending, enums.BookingStateConfirmed:
	default:
		return Decision{}, pkgerrors.New(
			pkgerrors.CodeInvalidTransition,
			"booking cannot be cancelled from state "+string(in.BookingState),
		)
	}

	// A pending booking only holds an authorization. Voiding the hold
	// returns everything without a refund, regardless of timing.
	if in.PaymentState == enums.PaymentStateAuthorized {
		return Decision{Action: ActionRelease, Percentage: fullPercent}, nil
	}

	// Once the trip has started no captured money comes back, whoever
	// initiated the cancellation.
	if !in.Now.Before(in.PickupAt) {
		return Decision{Action: ActionNone, Percentage: 0}, nil
	}

	// Hosts forfeit the cancellation schedule: the renter gets everything
	// back when the host backs out before pickup.
	if in.Initiator == enums.CancelledByHost {
		return refundDecision(in.TotalMinor, fullPercent), nil
	}

	pct := scheduledPercent(in.PickupAt.Sub(in.Now))
	return refundDecision(in.TotalMinor, pct), nil
}

func scheduledPercent(untilPickup time.Duration) int {
	hours := untilPickup.Hours()
	switch {
	case hours >= fullRefundHours:
		return fullPercent
	case hours >= threeQuarterHours:
		return threeQuarterPct
	case hours >= halfRefundHours:
		return halfPercent
	default:
		return quarterPercent
	}
}

func refundDecision(totalMinor int64, pct int) Decision {
	return Decision{
		Action:      ActionRefund,
		Percentage:  pct,
		AmountMinor: Amount(totalMinor, pct),
	}
}

// Amount applies pct to totalMinor with half-up rounding on the minor unit.
func Amount(totalMinor int64, pct int) int64 {
	if totalMinor <= 0 || pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return totalMinor
	}
	total := decimal.NewFromInt(totalMinor)
	ratio := decimal.NewFromInt(int64(pct)).Div(decimal.NewFromInt(100))
	return total.Mul(ratio).Round(0).IntPart()
}
