package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type checkoutRequest struct {
	BillingDetails  gateway.BillingDetails `json:"billing_details"`
	PaymentMethodID string                 `json:"payment_method_id"`
	Notes           string                 `json:"notes"`
}

type prefillResponse struct {
	BillingDetails gateway.BillingDetails `json:"billing_details"`
	Cart           cartResponse           `json:"cart"`
}

// CheckoutPrefill returns billing details seeded from the account profile
// together with the cart about to be ordered.
func CheckoutPrefill(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prefillResponse{
			BillingDetails: checkout.Prefill(dev.Session.Snapshot()),
			Cart:           newCartResponse(dev.Cart),
		})
	}
}

// CheckoutSubmit runs one checkout attempt for the device and answers with
// the final state and the page to continue on.
func CheckoutSubmit(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if dev.Checkout == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := dev.Checkout.Submit(r.Context(), checkout.Request{
			Billing:         payload.BillingDetails,
			PaymentMethodID: payload.PaymentMethodID,
			Notes:           payload.Notes,
		}, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
