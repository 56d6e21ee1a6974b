package payments

import (
	"context"
	"sync"
)

// Fake is an in-process processor for development and tests. Payment
// method ids listed in Declines fail with the mapped message.
type Fake struct {
	mu       sync.Mutex
	Declines map[string]string
	Err      error
	calls    []Confirmation
}

func NewFake() *Fake {
	return &Fake{Declines: map[string]string{
		"pm_card_chargeDeclined": "Your card was declined.",
	}}
}

func (f *Fake) ConfirmCardPayment(ctx context.Context, in Confirmation) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	failure := f.Err
	message, declines := f.Declines[in.PaymentMethodID]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if failure != nil {
		return Result{}, failure
	}
	intentID, err := IntentID(in.ClientSecret)
	if err != nil {
		return Result{}, err
	}
	if declines {
		return Result{}, declined(message, map[string]any{"payment_intent_id": intentID})
	}
	return Result{PaymentIntentID: intentID, Status: "succeeded"}, nil
}

// Calls returns the confirmations received so far.
func (f *Fake) Calls() []Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Confirmation(nil), f.calls...)
}
