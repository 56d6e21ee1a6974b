package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/angelmondragon/storefront/pkg/redis"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeviceKey(deviceID, key string) string
}

// Redis keeps device entries under sf:device:<deviceID>:<key>.
type Redis struct {
	client redisStore
	ttl    time.Duration
}

// NewRedis wraps the shared redis client. A positive ttl expires idle device entries.
func NewRedis(client *redisclient.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, deviceID, key string) (string, bool, error) {
	if deviceID == "" {
		return "", false, ErrDeviceRequired
	}
	value, err := r.client.Get(ctx, r.client.DeviceKey(deviceID, key))
	if errors.Is(err, redisclient.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, deviceID, key, value string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	if err := r.client.Set(ctx, r.client.DeviceKey(deviceID, key), value, r.ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, deviceID string, keys ...string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaced = append(namespaced, r.client.DeviceKey(deviceID, key))
	}
	if err := r.client.Del(ctx, namespaced...); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
