package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/storefront"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func currentDevice(r *http.Request) (*storefront.Device, error) {
	dev := middleware.DeviceFromContext(r.Context())
	if dev == nil || dev.Session == nil || dev.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "device context missing")
	}
	return dev, nil
}
