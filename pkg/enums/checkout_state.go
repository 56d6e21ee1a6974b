package enums

import "fmt"

// CheckoutState is the client-side state of a single checkout attempt.
type CheckoutState string

const (
	CheckoutStateIdle                        CheckoutState = "idle"
	CheckoutStateCreatingOrder               CheckoutState = "creating_order"
	CheckoutStateAwaitingPaymentConfirmation CheckoutState = "awaiting_payment_confirmation"
	CheckoutStateConfirmingWithBackend       CheckoutState = "confirming_with_backend"
	CheckoutStateSucceeded                   CheckoutState = "succeeded"
	CheckoutStateFailed                      CheckoutState = "failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:                        {CheckoutStateCreatingOrder},
	CheckoutStateCreatingOrder:               {CheckoutStateAwaitingPaymentConfirmation, CheckoutStateFailed},
	CheckoutStateAwaitingPaymentConfirmation: {CheckoutStateConfirmingWithBackend, CheckoutStateFailed},
	CheckoutStateConfirmingWithBackend:       {CheckoutStateSucceeded, CheckoutStateFailed},
}

// String implements fmt.Stringer.
func (c CheckoutState) String() string {
	return string(c)
}

// IsTerminal reports whether no further transition is possible.
func (c CheckoutState) IsTerminal() bool {
	return c == CheckoutStateSucceeded || c == CheckoutStateFailed
}

// CanTransition reports whether moving from c to next is allowed.
func (c CheckoutState) CanTransition(next CheckoutState) bool {
	for _, candidate := range checkoutTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	switch CheckoutState(value) {
	case CheckoutStateIdle,
		CheckoutStateCreatingOrder,
		CheckoutStateAwaitingPaymentConfirmation,
		CheckoutStateConfirmingWithBackend,
		CheckoutStateSucceeded,
		CheckoutStateFailed:
		return CheckoutState(value), nil
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}
