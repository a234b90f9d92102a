// Package store defines the persistent cache contract used by the release
// metadata engine, a string-keyed store of timestamped records namespaced by
// bin.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in a bin.
var ErrNotFound = errors.New("store: not found")

// Record is a single cached payload with its lifecycle timestamps.
//
// A record is usable only while now is before ExpiresAt; CreatedAt exists for
// cross-record oldest-entry queries and never determines freshness.
type Record struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Cache is a string-keyed store of records, namespaced by bin.
//
// Get does not apply expiry; callers decide freshness from the record's
// timestamps. Implementations must be safe for use from a single logical
// caller sequence; cross-process races on the same key are resolved
// last-writer-wins.
type Cache interface {
	// Get retrieves the record stored under key in bin.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, bin, key string) (*Record, error)

	// Set stores payload under key in bin, recording the creation time and
	// the given expiry. An existing record is overwritten.
	Set(ctx context.Context, bin, key string, payload []byte, expiresAt time.Time) error

	// Clear removes the record under key in bin.
	// Clearing an absent key is a no-op.
	Clear(ctx context.Context, bin, key string) error
}
