// Package auth gates the dashboard behind an external identity provider.
//
// flowdeck does not implement an authentication protocol. A Provider
// exchanges bearer tokens issued by the external auth service for a
// Principal and re-verifies principals that have gone stale; this package
// only carries the glue: session storage of the principal, request-context
// accessors, and the middleware gate.
package auth

import (
	"context"
	"errors"
	"time"
)

// Session key under which the principal is stored.
const SessionKeyPrincipal = "flowdeck:auth:principal"

var (
	// ErrUnauthorized indicates the request carries no valid principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenRejected indicates the external auth service rejected a token.
	ErrTokenRejected = errors.New("token rejected")
)

// Principal is the authenticated identity. Intentionally minimal — no
// catch-all claims map to prevent leakage into session storage.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`

	Roles []string `json:"roles,omitempty"`

	// ExpiresAtUnixMs is the hard expiry of the upstream auth session.
	ExpiresAtUnixMs int64 `json:"expires_at_unix_ms"`
}

// Expired reports whether the upstream auth session has hard-expired.
// A zero expiry means the provider did not supply one and the principal
// never passively expires (active Verify still applies).
func (p Principal) Expired(now time.Time) bool {
	return p.ExpiresAtUnixMs != 0 && now.UnixMilli() >= p.ExpiresAtUnixMs
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Provider adapts an external identity service.
type Provider interface {
	// Exchange validates a token issued by the auth service and returns
	// the principal it identifies. Returns ErrTokenRejected (possibly
	// wrapped) for tokens the service refuses.
	Exchange(ctx context.Context, token string) (Principal, error)

	// Verify checks that a previously exchanged principal is still valid
	// (not revoked upstream).
	Verify(ctx context.Context, p Principal) error
}

type contextKey struct{ name string }

var principalKey = &contextKey{"flowdeck-principal"}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal placed by the middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
