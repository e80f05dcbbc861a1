// Package state persists the small amount of process-wide state that must
// survive between invocations: the access token, its expiry and the
// resume offset.
package state

import (
	"context"
	"time"
)

// Persisted keys
const (
	KeyCheckpoint  = "start"
	KeyTokenExpiry = "expires_in"
	KeyAccessToken = "access_token"
	KeyRunLease    = "run_lock"
)

// Store is a string key-value store with a single-owner lease primitive.
// Implementations: RedisStore for production, MemoryStore for tests and
// local runs.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key, value string) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error

	// AcquireLease sets key to owner if absent. The lease expires after ttl.
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease deletes key only while owner still holds it.
	ReleaseLease(ctx context.Context, key, owner string) error

	Close() error
}

// StateError is a sentinel error type for the store
type StateError string

func (e StateError) Error() string { return string(e) }

const (
	// ErrNotFound indicates the key is not set.
	ErrNotFound StateError = "state key not found"
)
