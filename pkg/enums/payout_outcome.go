package enums

import "fmt"

// PayoutOutcome distinguishes releases whose payout the provider confirmed
// from releases that still need an operator to move the money.
type PayoutOutcome string

const (
	PayoutOutcomeConfirmed     PayoutOutcome = "confirmed_payout"
	PayoutOutcomePendingManual PayoutOutcome = "pending_manual_payout"
)

var validPayoutOutcomes = []PayoutOutcome{
	PayoutOutcomeConfirmed,
	PayoutOutcomePendingManual,
}

// String implements fmt.Stringer.
func (o PayoutOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known PayoutOutcome.
func (o PayoutOutcome) IsValid() bool {
	for _, candidate := range validPayoutOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParsePayoutOutcome converts raw input into a PayoutOutcome.
func ParsePayoutOutcome(value string) (PayoutOutcome, error) {
	for _, candidate := range validPayoutOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout outcome %q", value)
}
