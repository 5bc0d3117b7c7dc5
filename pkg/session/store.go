// Package session provides cookie-backed server sessions with pluggable
// persistence. The dashboard keeps the authenticated principal and small
// UI preferences here; everything else lives in the workflow store.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("session store is closed")

// Store is a session persistence backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists session state, overwriting any existing entry.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load retrieves session state by ID.
	// Returns (nil, nil) if the session doesn't exist or has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error

	// Touch extends the expiration without loading full state.
	// Missing sessions are not an error.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Close releases backend resources.
	Close() error
}
