package enums

import "fmt"

// CheckoutState tracks a single checkout attempt.
type CheckoutState string

const (
	CheckoutStateIdle       CheckoutState = "idle"
	CheckoutStateSubmitting CheckoutState = "submitting"
	CheckoutStateCommitted  CheckoutState = "committed"
	CheckoutStateFailed     CheckoutState = "failed"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateIdle,
	CheckoutStateSubmitting,
	CheckoutStateCommitted,
	CheckoutStateFailed,
}

// String implements fmt.Stringer.
func (c CheckoutState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutState.
func (c CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (c CheckoutState) IsTerminal() bool {
	return c == CheckoutStateCommitted || c == CheckoutStateFailed
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}
