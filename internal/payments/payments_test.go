package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type fakeIntents struct {
	gotID     string
	gotParams *stripe.PaymentIntentConfirmParams
	intent    *stripe.PaymentIntent
	err       error
}

func (f *fakeIntents) Confirm(_ context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.gotID = id
	f.gotParams = params
	return f.intent, f.err
}

func TestIntentID(t *testing.T) {
	id, err := IntentID("pi_3Nabc_secret_xyz")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Nabc", id)

	for _, bad := range []string{"", "sec_1", "pi_only", "seti_1_secret_2"} {
		_, err := IntentID(bad)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), bad)
	}
}

func TestStripeConfirmSucceeded(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}}
	s := &Stripe{intents: intents, logg: logger.Nop()}

	res, err := s.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_1_secret_2", PaymentMethodID: "pm_visa"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.PaymentIntentID)
	assert.Equal(t, "pi_1", intents.gotID)
	assert.Equal(t, "pm_visa", *intents.gotParams.PaymentMethod)
}

func TestStripeConfirmSendsReceiptEmail(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}}
	s := &Stripe{intents: intents, logg: logger.Nop()}

	_, err := s.ConfirmCardPayment(context.Background(), Confirmation{
		ClientSecret:    "pi_1_secret_2",
		PaymentMethodID: "pm_visa",
		Billing:         gateway.BillingDetails{Name: "Ana", Email: "ana@example.com", Phone: "600000000"},
	})
	require.NoError(t, err)
	require.NotNil(t, intents.gotParams.ReceiptEmail)
	assert.Equal(t, "ana@example.com", *intents.gotParams.ReceiptEmail)
	assert.Nil(t, intents.gotParams.PaymentMethodData)

	_, err = s.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_1_secret_2", PaymentMethodID: "pm_visa"})
	require.NoError(t, err)
	assert.Nil(t, intents.gotParams.ReceiptEmail)
}

func TestStripeDeclineSurfacesMessageVerbatim(t *testing.T) {
	intents := &fakeIntents{err: &stripe.Error{Msg: "Your card has insufficient funds.", Code: stripe.ErrorCodeCardDeclined}}
	s := &Stripe{intents: intents, logg: logger.Nop()}

	_, err := s.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_1_secret_2", PaymentMethodID: "pm_visa"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentDeclined, typed.Code())
	assert.Equal(t, "Your card has insufficient funds.", typed.Message())
}

func TestStripeNonSucceededStatusIsDecline(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresAction}}
	s := &Stripe{intents: intents, logg: logger.Nop()}

	_, err := s.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_1_secret_2", PaymentMethodID: "pm_visa"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentDeclined))
}

func TestStripeTransportErrorIsDependency(t *testing.T) {
	intents := &fakeIntents{err: errors.New("dial tcp: timeout")}
	s := &Stripe{intents: intents, logg: logger.Nop()}

	_, err := s.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_1_secret_2", PaymentMethodID: "pm_visa"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestFakeProcessor(t *testing.T) {
	f := NewFake()
	res, err := f.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_9_secret_1", PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, "pi_9", res.PaymentIntentID)

	_, err = f.ConfirmCardPayment(context.Background(), Confirmation{ClientSecret: "pi_9_secret_1", PaymentMethodID: "pm_card_chargeDeclined"})
	require.Error(t, err)
	assert.Equal(t, "Your card was declined.", pkgerrors.As(err).Message())
	assert.Len(t, f.Calls(), 2)
}
