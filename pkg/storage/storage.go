// Package storage provides the device-local key/value persistence that the
// storefront uses in place of browser storage. Values are opaque strings;
// callers own their encoding.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrDeviceRequired is returned when a backend is addressed without a device id.
var ErrDeviceRequired = errors.New("storage: device id is required")

// Store is the per-device view used by session and cart code.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend is a shared store partitioned by device id.
type Backend interface {
	Get(ctx context.Context, deviceID, key string) (string, bool, error)
	Set(ctx context.Context, deviceID, key, value string) error
	Delete(ctx context.Context, deviceID string, keys ...string) error
}

type scoped struct {
	backend  Backend
	deviceID string
}

// Scoped binds a backend to one device.
func Scoped(backend Backend, deviceID string) (Store, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	if backend == nil {
		return nil, errors.New("storage: backend is required")
	}
	return &scoped{backend: backend, deviceID: deviceID}, nil
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Get(ctx, s.deviceID, key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.backend.Set(ctx, s.deviceID, key, value)
}

func (s *scoped) Delete(ctx context.Context, keys ...string) error {
	return s.backend.Delete(ctx, s.deviceID, keys...)
}
