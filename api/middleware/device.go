package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type deviceResolver interface {
	Device(ctx context.Context, id string) (*storefront.Device, error)
}

// Device resolves the browser's device from its cookie, minting a new id
// when the cookie is missing or unusable, and stores it on the context.
func Device(cfg config.DeviceConfig, registry deviceResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cookie, err := r.Cookie(cfg.CookieName); err == nil && storefront.ValidDeviceID(cookie.Value) {
				id = cookie.Value
			}
			if id == "" {
				id = storefront.NewDeviceID()
			}
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.CookieTTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, id)
			}
			dev, err := registry.Device(ctx, id)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				if uid := dev.Session.Identity().UserID; uid > 0 {
					ctx = logg.WithUserID(ctx, uid)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithDevice(ctx, dev)))
		})
	}
}
