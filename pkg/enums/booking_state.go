package enums

import "fmt"

// BookingState tracks the lifecycle of a booking.
type BookingState string

const (
	BookingStatePending   BookingState = "pending"
	BookingStateConfirmed BookingState = "confirmed"
	BookingStateDeclined  BookingState = "declined"
	BookingStateCancelled BookingState = "cancelled"
	BookingStateCompleted BookingState = "completed"
)

var validBookingStates = []BookingState{
	BookingStatePending,
	BookingStateConfirmed,
	BookingStateDeclined,
	BookingStateCancelled,
	BookingStateCompleted,
}

// String implements fmt.Stringer.
func (b BookingState) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingState.
func (b BookingState) IsValid() bool {
	for _, candidate := range validBookingStates {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from this state.
func (b BookingState) IsTerminal() bool {
	switch b {
	case BookingStateDeclined, BookingStateCancelled, BookingStateCompleted:
		return true
	default:
		return false
	}
}

// ParseBookingState converts raw input into a BookingState.
func ParseBookingState(value string) (BookingState, error) {
	for _, candidate := range validBookingStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking state %q", value)
}
