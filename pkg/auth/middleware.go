package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flowdeck/flowdeck/pkg/session"
)

// Gate resolves principals from the flowdeck session and guards routes.
type Gate struct {
	sessions *session.Manager
	provider Provider
	logger   *slog.Logger
	denied   http.Handler
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithDeniedHandler sets the handler run when a request carries no valid
// principal. Default: plain 401. API mounts typically install a JSON
// handler, page mounts a redirect to the login URL.
func WithDeniedHandler(h http.Handler) GateOption {
	return func(g *Gate) { g.denied = h }
}

// NewGate creates an authentication gate.
func NewGate(sessions *session.Manager, provider Provider, opts ...GateOption) *Gate {
	g := &Gate{
		sessions: sessions,
		provider: provider,
		logger:   slog.Default(),
		denied: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireAuth is middleware that admits only requests with a live
// principal. The principal is placed on the request context for handlers
// downstream; see FromContext.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return g.requireAuth(next, g.denied)
}

// RequireAuthWith is RequireAuth with a mount-specific denial handler
// (JSON 401 for API routes, login redirect for pages).
func (g *Gate) RequireAuthWith(denied http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.requireAuth(next, denied)
	}
}

func (g *Gate) requireAuth(next, denied http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.resolve(r)
		if !ok {
			denied.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole admits only principals carrying the role.
func (g *Gate) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := FromContext(r.Context())
			if !principal.HasRole(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// Login exchanges a token from the external auth service and binds the
// resulting principal to the request's session.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request, token string) (Principal, error) {
	principal, err := g.provider.Exchange(r.Context(), token)
	if err != nil {
		return Principal{}, err
	}

	sess, err := g.sessions.Attach(w, r)
	if err != nil {
		return Principal{}, err
	}
	if err := sess.Set(SessionKeyPrincipal, principal); err != nil {
		return Principal{}, err
	}
	if err := g.sessions.Save(r.Context(), sess); err != nil {
		return Principal{}, err
	}
	g.logger.Info("user logged in", "user", principal.ID)
	return principal, nil
}

// Logout destroys the request's session.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, ok := g.sessions.Lookup(r)
	if !ok {
		return nil
	}
	return g.sessions.Destroy(r.Context(), w, sess)
}

// resolve loads the principal from the request's session and applies the
// passive expiry check. Active upstream verification (Provider.Verify) is
// the caller's concern; it is not run per request.
func (g *Gate) resolve(r *http.Request) (Principal, bool) {
	sess, ok := g.sessions.Lookup(r)
	if !ok {
		return Principal{}, false
	}
	var principal Principal
	if !sess.Get(SessionKeyPrincipal, &principal) {
		return Principal{}, false
	}
	if principal.Expired(time.Now()) {
		g.logger.Debug("session principal expired", "user", principal.ID)
		return Principal{}, false
	}
	return principal, true
}
