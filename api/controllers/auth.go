package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"omitempty,max=150"`
	LastName        string `json:"last_name" validate:"omitempty,max=150"`
}

type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	IsAdmin       bool          `json:"is_admin"`
	User          *gateway.User `json:"user,omitempty"`
	CartItemCount int           `json:"cart_item_count"`
}

func newSessionResponse(snap session.Snapshot, cartItems int) sessionResponse {
	return sessionResponse{
		Authenticated: snap.Identity.Authenticated(),
		IsAdmin:       snap.Identity.IsAdmin(),
		User:          snap.User,
		CartItemCount: cartItems,
	}
}

// AuthLogin signs the device in with a username or email.
func AuthLogin(logg *logger.Logger) http.HandlerFunc {
	return login(false, logg)
}

// AdminAuthLogin signs the device in and rejects accounts without staff rights.
func AdminAuthLogin(logg *logger.Logger) http.HandlerFunc {
	return login(true, logg)
}

func login(admin bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload loginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		creds := gateway.Credentials{
			Identifier: strings.TrimSpace(payload.Identifier),
			Password:   payload.Password,
		}

		if admin {
			_, err = dev.Session.LoginAdmin(r.Context(), creds)
		} else {
			_, err = dev.Session.Login(r.Context(), creds)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(dev.Session.Snapshot(), dev.Cart.ItemCount()))
	}
}

// AuthRegister creates an account and signs the device in with it.
func AuthRegister(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload registerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		_, err = dev.Session.Register(r.Context(), gateway.Registration{
			Username:        strings.TrimSpace(payload.Username),
			Email:           strings.ToLower(strings.TrimSpace(payload.Email)),
			Password:        payload.Password,
			PasswordConfirm: payload.PasswordConfirm,
			FirstName:       strings.TrimSpace(payload.FirstName),
			LastName:        strings.TrimSpace(payload.LastName),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(dev.Session.Snapshot(), dev.Cart.ItemCount()))
	}
}

// AuthLogout ends the session. The device always ends up as a guest.
func AuthLogout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := dev.Session.Logout(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(dev.Session.Snapshot(), dev.Cart.ItemCount()))
	}
}

func AuthMe(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, err := currentDevice(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(dev.Session.Snapshot(), dev.Cart.ItemCount()))
	}
}
