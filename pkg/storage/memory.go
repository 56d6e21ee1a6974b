package storage

import (
	"context"
	"sync"
)

// Memory is a process-local backend. Last write wins.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string]string)}
}

// NewMemoryStore returns a ready single-device store, mostly for tests.
func NewMemoryStore() Store {
	store, _ := Scoped(NewMemory(), "local")
	return store
}

func (m *Memory) Get(_ context.Context, deviceID, key string) (string, bool, error) {
	if deviceID == "" {
		return "", false, ErrDeviceRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[deviceID][key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, deviceID, key, value string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.entries[deviceID]
	if !ok {
		device = make(map[string]string)
		m.entries[deviceID] = device
	}
	device[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, deviceID string, keys ...string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	device := m.entries[deviceID]
	for _, key := range keys {
		delete(device, key)
	}
	if len(device) == 0 {
		delete(m.entries, deviceID)
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
