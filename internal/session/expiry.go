package session

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// Expirer ends a session after the API rejected its token.
type Expirer interface {
	Expire(ctx context.Context, token string) (bool, error)
}

// Current is what request-scoped services need from a device session.
type Current interface {
	Expirer
	Snapshot() Snapshot
}

// RejectedSession reports whether err is the API refusing a token it was sent.
func RejectedSession(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) && errors.Is(err, gateway.ErrSessionExpired)
}

// ExpireOnReject clears the session when err is a rejection of token and
// token is still current. err is returned unchanged so callers can surface it.
func ExpireOnReject(ctx context.Context, e Expirer, token string, err error, logg *logger.Logger) error {
	if err == nil || e == nil || !RejectedSession(err) {
		return err
	}
	if _, expireErr := e.Expire(ctx, token); expireErr != nil {
		logg.Error(ctx, "session.expire_failed", expireErr)
	}
	return err
}
