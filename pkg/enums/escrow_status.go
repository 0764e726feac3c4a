package enums

import "fmt"

// EscrowStatus tracks the lifecycle of an escrow hold.
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusPending,
	EscrowStatusHeld,
	EscrowStatusReleased,
}

// String implements fmt.Stringer.
func (s EscrowStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowStatus.
func (s EscrowStatus) IsValid() bool {
	for _, candidate := range validEscrowStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// rank orders statuses along pending -> held -> released.
func (s EscrowStatus) rank() int {
	for i, candidate := range validEscrowStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a single forward step.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to == from+1
}

// Releasable reports whether a hold in this status may be released.
func (s EscrowStatus) Releasable() bool {
	return s == EscrowStatusHeld
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
