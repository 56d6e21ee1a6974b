package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const defaultCountry = "US"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

type billingForm struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,max=20"`
	Address string `json:"address" validate:"required,max=255"`
	City    string `json:"city" validate:"required,max=100"`
	Country string `json:"country" validate:"required,len=2,alpha"`
}

// ValidateBilling checks billing details before any order is created.
func ValidateBilling(b gateway.BillingDetails) error {
	form := billingForm{
		Name:    strings.TrimSpace(b.Name),
		Email:   strings.TrimSpace(b.Email),
		Phone:   strings.TrimSpace(b.Phone),
		Address: strings.TrimSpace(b.Address),
		City:    strings.TrimSpace(b.City),
		Country: strings.TrimSpace(b.Country),
	}
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing details")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "email":
			details[fe.Field()] = "must be a valid email"
		case "len", "alpha":
			details[fe.Field()] = "must be a two letter country code"
		default:
			details[fe.Field()] = "is too long"
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid billing details").WithDetails(details)
}

// Prefill builds the billing form from the signed-in user's profile. The
// email always comes from the account and cannot be edited.
func Prefill(snap session.Snapshot) gateway.BillingDetails {
	billing := gateway.BillingDetails{Country: defaultCountry}
	if snap.User == nil {
		billing.Email = snap.Identity.Email
		return billing
	}
	user := *snap.User
	billing.Name = user.FullName()
	billing.Email = user.Email
	if p := user.Profile; p != nil {
		billing.Phone = p.Phone
		billing.Address = p.DefaultAddress
		billing.City = p.DefaultCity
		if c := strings.ToUpper(strings.TrimSpace(p.DefaultCountry)); c != "" {
			billing.Country = c
		}
	}
	return billing
}
