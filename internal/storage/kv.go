// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys that cannot be stored safely.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnknownBackend is returned by Open for unsupported backends.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// keyPattern limits keys to characters that are safe as file names.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey reports whether key is usable by every backend.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// =============================================================================
// KV INTERFACE
// =============================================================================

// KV is a minimal key-value persistence sink.
type KV interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryKV keeps values in memory.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Options selects and configures a backend.
type Options struct {
	// Backend is "memory", "file" or "redis". Empty means "file".
	Backend string

	// Path is the directory used by the file backend.
	Path string

	// RedisURL is the connection URL used by the redis backend.
	RedisURL string

	// KeyPrefix is prepended to every Redis key.
	KeyPrefix string
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case "memory":
		return NewMemoryKV(), nil
	case "", "file":
		return NewFileKV(opts.Path)
	case "redis":
		return NewRedisKV(ctx, opts.RedisURL, opts.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
