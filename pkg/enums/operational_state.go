package enums

import "fmt"

// OperationalState is the derived availability view of a vehicle. It is
// written only by the booking orchestrator and the reconcile job, never by
// UI-facing callers.
type OperationalState string

const (
	OperationalStateActive      OperationalState = "active"
	OperationalStateOnTrip      OperationalState = "on_trip"
	OperationalStateUnavailable OperationalState = "unavailable"
)

var validOperationalStates = []OperationalState{
	OperationalStateActive,
	OperationalStateOnTrip,
	OperationalStateUnavailable,
}

// String implements fmt.Stringer.
func (o OperationalState) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OperationalState.
func (o OperationalState) IsValid() bool {
	for _, candidate := range validOperationalStates {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperationalState converts raw input into an OperationalState.
func ParseOperationalState(value string) (OperationalState, error) {
	for _, candidate := range validOperationalStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operational state %q", value)
}
