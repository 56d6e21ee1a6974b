package middleware

import (
	"context"

	"github.com/angelmondragon/storefront/internal/storefront"
)

type contextKey string

const ctxDevice contextKey = "device"

// DeviceFromContext returns the device resolved by the Device middleware.
func DeviceFromContext(ctx context.Context) *storefront.Device {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxDevice).(*storefront.Device); ok {
		return v
	}
	return nil
}

// WithDevice injects the resolved device into the context.
func WithDevice(ctx context.Context, dev *storefront.Device) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDevice, dev)
}

func deviceIDFromContext(ctx context.Context) string {
	if dev := DeviceFromContext(ctx); dev != nil {
		return dev.ID
	}
	return ""
}
