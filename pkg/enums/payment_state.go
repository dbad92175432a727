package enums

import "fmt"

// PaymentState tracks the settlement position of a booking's funds.
type PaymentState string

const (
	PaymentStateAuthorized        PaymentState = "authorized"
	PaymentStateCaptured          PaymentState = "captured"
	PaymentStateReleased          PaymentState = "released"
	PaymentStateRefunded          PaymentState = "refunded"
	PaymentStatePartiallyRefunded PaymentState = "partially_refunded"
)

var validPaymentStates = []PaymentState{
	PaymentStateAuthorized,
	PaymentStateCaptured,
	PaymentStateReleased,
	PaymentStateRefunded,
	PaymentStatePartiallyRefunded,
}

// String implements fmt.Stringer.
func (p PaymentState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentState.
func (p PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSettled reports whether the payer's funds are no longer held.
func (p PaymentState) IsSettled() bool {
	switch p {
	case PaymentStateReleased, PaymentStateRefunded, PaymentStatePartiallyRefunded:
		return true
	default:
		return false
	}
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}
