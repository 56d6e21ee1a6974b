package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	stripeclient "github.com/angelmondragon/storefront/pkg/stripe"
)

type intentConfirmer interface {
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// Stripe confirms payment intents created by the storefront API.
type Stripe struct {
	intents intentConfirmer
	logg    *logger.Logger
}

type intentWrapper struct{}

func (intentWrapper) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Confirm(id, params)
}

// NewStripe returns nil when the client was never configured.
func NewStripe(client *stripeclient.Client, logg *logger.Logger) *Stripe {
	if client == nil {
		return nil
	}
	return &Stripe{intents: intentWrapper{}, logg: logg}
}

func (s *Stripe) ConfirmCardPayment(ctx context.Context, in Confirmation) (Result, error) {
	intentID, err := IntentID(in.ClientSecret)
	if err != nil {
		return Result{}, err
	}
	if in.PaymentMethodID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	// Name, phone and address ride on the payment method the browser created.
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(in.PaymentMethodID),
	}
	if in.Billing.Email != "" {
		params.ReceiptEmail = stripe.String(in.Billing.Email)
	}

	intent, err := s.intents.Confirm(ctx, intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			details := map[string]any{"payment_intent_id": intentID}
			if stripeErr.Code != "" {
				details["processor_code"] = string(stripeErr.Code)
			}
			if stripeErr.DeclineCode != "" {
				details["decline_code"] = string(stripeErr.DeclineCode)
			}
			logCtx := s.logg.WithFields(ctx, details)
			s.logg.Warn(logCtx, "payments.stripe.declined")
			return Result{}, declined(stripeErr.Msg, details)
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unavailable").
			WithDetails(map[string]any{"payment_intent_id": intentID})
	}

	status := string(intent.Status)
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		message := "payment was not completed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			message = intent.LastPaymentError.Msg
		}
		return Result{}, declined(message, map[string]any{
			"payment_intent_id": intent.ID,
			"status":            status,
		})
	}
	return Result{PaymentIntentID: intent.ID, Status: status}, nil
}
