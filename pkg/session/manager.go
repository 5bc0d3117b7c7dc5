package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultCookieName is the session cookie flowdeck sets.
const DefaultCookieName = "fd_session"

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Session is one visitor's server-side state. Values are stored as raw JSON
// so arbitrary types survive a store round trip without gob registration.
type Session struct {
	id string

	mu     sync.RWMutex
	values map[string]json.RawMessage
	dirty  bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Set marshals v under key. Marshal failures are returned, not stored.
func (s *Session) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session set %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	s.dirty = true
	return nil
}

// Get unmarshals the value under key into out.
// Returns false if the key is absent or the stored JSON does not fit out.
func (s *Session) Get(key string, out any) bool {
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Delete removes key from the session.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Session) marshal() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.values)
}

// Manager issues session cookies and moves session state in and out of a
// Store.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) { m.cookieName = name }
}

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithSecureCookies marks cookies Secure. Enable behind TLS.
func WithSecureCookies(secure bool) ManagerOption {
	return func(m *Manager) { m.secure = secure }
}

// NewManager creates a session manager on the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach returns the request's session, creating one (and setting the
// cookie) if the request carries none or an expired/unknown ID.
func (m *Manager) Attach(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		data, err := m.store.Load(r.Context(), cookie.Value)
		if err != nil {
			return nil, fmt.Errorf("attach session: %w", err)
		}
		if data != nil {
			sess := &Session{id: cookie.Value, values: map[string]json.RawMessage{}}
			if err := json.Unmarshal(data, &sess.values); err != nil {
				return nil, fmt.Errorf("attach session: corrupt state: %w", err)
			}
			return sess, nil
		}
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{id: id, values: map[string]json.RawMessage{}, dirty: true}
	http.SetCookie(w, m.cookie(id, m.ttl))
	return sess, nil
}

// Lookup returns the request's session without creating one.
func (m *Manager) Lookup(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	data, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil || data == nil {
		return nil, false
	}
	sess := &Session{id: cookie.Value, values: map[string]json.RawMessage{}}
	if json.Unmarshal(data, &sess.values) != nil {
		return nil, false
	}
	return sess, true
}

// Save persists the session if it changed.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if !sess.Dirty() {
		return m.store.Touch(ctx, sess.id, time.Now().Add(m.ttl))
	}
	data, err := sess.marshal()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.store.Save(ctx, sess.id, data, time.Now().Add(m.ttl)); err != nil {
		return err
	}
	sess.mu.Lock()
	sess.dirty = false
	sess.mu.Unlock()
	return nil
}

// Destroy removes the session from the store and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := m.store.Delete(ctx, sess.id); err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(sess.id, -time.Hour))
	return nil
}

func (m *Manager) cookie(id string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// newSessionID returns a 128-bit random hex identifier.
func newSessionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
