package enums

import "fmt"

// CancellationInitiator identifies which party cancelled a booking.
type CancellationInitiator string

const (
	CancelledByRenter CancellationInitiator = "renter"
	CancelledByHost   CancellationInitiator = "host"
)

var validCancellationInitiators = []CancellationInitiator{
	CancelledByRenter,
	CancelledByHost,
}

// String implements fmt.Stringer.
func (c CancellationInitiator) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationInitiator.
func (c CancellationInitiator) IsValid() bool {
	for _, candidate := range validCancellationInitiators {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationInitiator converts raw input into a CancellationInitiator.
func ParseCancellationInitiator(value string) (CancellationInitiator, error) {
	for _, candidate := range validCancellationInitiators {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation initiator %q", value)
}
