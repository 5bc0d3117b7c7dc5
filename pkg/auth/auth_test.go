package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowdeck/flowdeck/pkg/session"
)

func TestPrincipalExpired(t *testing.T) {
	now := time.Now()

	t.Run("ZeroExpiryNeverExpires", func(t *testing.T) {
		if (Principal{}).Expired(now) {
			t.Error("zero expiry should never passively expire")
		}
	})

	t.Run("PastExpiry", func(t *testing.T) {
		p := Principal{ExpiresAtUnixMs: now.Add(-time.Minute).UnixMilli()}
		if !p.Expired(now) {
			t.Error("past expiry should report expired")
		}
	})

	t.Run("FutureExpiry", func(t *testing.T) {
		p := Principal{ExpiresAtUnixMs: now.Add(time.Minute).UnixMilli()}
		if p.Expired(now) {
			t.Error("future expiry should not report expired")
		}
	})
}

func TestPrincipalHasRole(t *testing.T) {
	p := Principal{Roles: []string{"editor", "admin"}}
	if !p.HasRole("admin") {
		t.Error("HasRole(admin) should be true")
	}
	if p.HasRole("owner") {
		t.Error("HasRole(owner) should be false")
	}
}

// fakeProvider accepts exactly one token.
type fakeProvider struct {
	token     string
	principal Principal
	verifyErr error
}

func (f *fakeProvider) Exchange(_ context.Context, token string) (Principal, error) {
	if token != f.token {
		return Principal{}, ErrTokenRejected
	}
	return f.principal, nil
}

func (f *fakeProvider) Verify(context.Context, Principal) error {
	return f.verifyErr
}

func newTestGate(t *testing.T, provider Provider) (*Gate, *session.Manager) {
	t.Helper()
	store := session.NewMemoryStore(session.WithSweepInterval(0))
	t.Cleanup(func() { store.Close() })
	mgr := session.NewManager(store)
	return NewGate(mgr, provider), mgr
}

func TestGateRequireAuth(t *testing.T) {
	provider := &fakeProvider{
		token:     "tok",
		principal: Principal{ID: "u_1", Email: "a@b.c", Roles: []string{"editor"}},
	}
	gate, _ := newTestGate(t, provider)

	var seen Principal
	protected := gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("NoSessionDenied", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status: got %d, want 401", w.Code)
		}
	})

	t.Run("LoginThenAdmitted", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		if _, err := gate.Login(w, r, "tok"); err != nil {
			t.Fatalf("Login: %v", err)
		}
		cookie := w.Result().Cookies()[0]

		w2 := httptest.NewRecorder()
		r2 := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		r2.AddCookie(cookie)
		protected.ServeHTTP(w2, r2)

		if w2.Code != http.StatusOK {
			t.Fatalf("status: got %d, want 200", w2.Code)
		}
		if seen.ID != "u_1" {
			t.Errorf("principal from context: got %q, want u_1", seen.ID)
		}
	})

	t.Run("BadTokenRejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		if _, err := gate.Login(w, r, "wrong"); !errors.Is(err, ErrTokenRejected) {
			t.Errorf("Login with bad token: got %v, want ErrTokenRejected", err)
		}
	})

	t.Run("ExpiredPrincipalDenied", func(t *testing.T) {
		expired := &fakeProvider{
			token: "tok",
			principal: Principal{
				ID:              "u_2",
				ExpiresAtUnixMs: time.Now().Add(-time.Minute).UnixMilli(),
			},
		}
		gate2, _ := newTestGate(t, expired)
		protected2 := gate2.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		if _, err := gate2.Login(w, r, "tok"); err != nil {
			t.Fatalf("Login: %v", err)
		}
		cookie := w.Result().Cookies()[0]

		w2 := httptest.NewRecorder()
		r2 := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		r2.AddCookie(cookie)
		protected2.ServeHTTP(w2, r2)
		if w2.Code != http.StatusUnauthorized {
			t.Errorf("status: got %d, want 401", w2.Code)
		}
	})
}

func TestGateRequireRole(t *testing.T) {
	provider := &fakeProvider{
		token:     "tok",
		principal: Principal{ID: "u_1", Roles: []string{"viewer"}},
	}
	gate, _ := newTestGate(t, provider)

	adminOnly := gate.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if _, err := gate.Login(w, r, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookie := w.Result().Cookies()[0]

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r2.AddCookie(cookie)
	adminOnly.ServeHTTP(w2, r2)
	if w2.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", w2.Code)
	}
}

func TestGateLogout(t *testing.T) {
	provider := &fakeProvider{token: "tok", principal: Principal{ID: "u_1"}}
	gate, _ := newTestGate(t, provider)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if _, err := gate.Login(w, r, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookie := w.Result().Cookies()[0]

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r2.AddCookie(cookie)
	if err := gate.Logout(w2, r2); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	protected := gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w3 := httptest.NewRecorder()
	r3 := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r3.AddCookie(cookie)
	protected.ServeHTTP(w3, r3)
	if w3.Code != http.StatusUnauthorized {
		t.Errorf("status after logout: got %d, want 401", w3.Code)
	}
}

func TestRemoteProvider(t *testing.T) {
	principal := Principal{ID: "u_9", Email: "x@y.z"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/exchange":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["token"] != "good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(principal)
		case "/v1/verify":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	provider := NewRemoteProvider(srv.URL)
	ctx := context.Background()

	t.Run("ExchangeGoodToken", func(t *testing.T) {
		got, err := provider.Exchange(ctx, "good")
		if err != nil {
			t.Fatalf("Exchange: %v", err)
		}
		if got.ID != "u_9" {
			t.Errorf("principal: got %+v, want ID u_9", got)
		}
	})

	t.Run("ExchangeBadToken", func(t *testing.T) {
		_, err := provider.Exchange(ctx, "bad")
		if !errors.Is(err, ErrTokenRejected) {
			t.Errorf("Exchange: got %v, want ErrTokenRejected", err)
		}
	})

	t.Run("Verify", func(t *testing.T) {
		if err := provider.Verify(ctx, principal); err != nil {
			t.Errorf("Verify: %v", err)
		}
	})
}
