package payments

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Confirmation is everything the processor needs to charge a handshake.
type Confirmation struct {
	ClientSecret    string
	PaymentMethodID string
	Billing         gateway.BillingDetails
}

// Result identifies the payment the processor accepted.
type Result struct {
	PaymentIntentID string
	Status          string
}

// Processor confirms a card payment for an order handshake. Declines are
// reported as PAYMENT_DECLINED errors whose message is the processor's own.
type Processor interface {
	ConfirmCardPayment(ctx context.Context, in Confirmation) (Result, error)
}

// IntentID derives the PaymentIntent id from its client secret
// ("pi_123_secret_abc" becomes "pi_123").
func IntentID(clientSecret string) (string, error) {
	secret := strings.TrimSpace(clientSecret)
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 || !strings.HasPrefix(secret, "pi_") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "client secret is not a payment intent secret")
	}
	return secret[:idx], nil
}

func declined(message string, details map[string]any) *pkgerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "your card was declined"
	}
	return pkgerrors.New(pkgerrors.CodePaymentDeclined, message).WithDetails(details)
}
