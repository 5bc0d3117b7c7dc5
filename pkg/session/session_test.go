package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		defer store.Close()

		if err := store.Save(ctx, "s1", []byte("state"), time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		data, err := store.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if string(data) != "state" {
			t.Errorf("Load: got %q, want %q", data, "state")
		}
	})

	t.Run("LoadMissingReturnsNilNil", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		defer store.Close()

		data, err := store.Load(ctx, "absent")
		if err != nil || data != nil {
			t.Errorf("Load missing: got (%v, %v), want (nil, nil)", data, err)
		}
	})

	t.Run("ExpiredSessionNotLoaded", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		defer store.Close()

		_ = store.Save(ctx, "s1", []byte("x"), time.Now().Add(-time.Second))
		data, err := store.Load(ctx, "s1")
		if err != nil || data != nil {
			t.Errorf("Load expired: got (%v, %v), want (nil, nil)", data, err)
		}
	})

	t.Run("TouchExtendsExpiry", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		defer store.Close()

		_ = store.Save(ctx, "s1", []byte("x"), time.Now().Add(10*time.Millisecond))
		if err := store.Touch(ctx, "s1", time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		data, _ := store.Load(ctx, "s1")
		if data == nil {
			t.Error("session expired despite Touch")
		}
	})

	t.Run("DeleteMissingIsNotAnError", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		defer store.Close()
		if err := store.Delete(ctx, "absent"); err != nil {
			t.Errorf("Delete missing: %v", err)
		}
	})

	t.Run("SweepEvictsExpired", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(10 * time.Millisecond))
		defer store.Close()

		_ = store.Save(ctx, "s1", []byte("x"), time.Now().Add(-time.Second))
		deadline := time.Now().Add(time.Second)
		for store.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if store.Len() != 0 {
			t.Errorf("sweep did not evict: %d sessions remain", store.Len())
		}
	})

	t.Run("ClosedStoreRejectsOps", func(t *testing.T) {
		store := NewMemoryStore(WithSweepInterval(0))
		store.Close()
		if err := store.Save(ctx, "s1", nil, time.Now()); err != ErrStoreClosed {
			t.Errorf("Save on closed store: got %v, want ErrStoreClosed", err)
		}
		if _, err := store.Load(ctx, "s1"); err != ErrStoreClosed {
			t.Errorf("Load on closed store: got %v, want ErrStoreClosed", err)
		}
		// Close is idempotent.
		if err := store.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	})
}

func TestSessionValues(t *testing.T) {
	sess := &Session{id: "s1", values: map[string]json.RawMessage{}}

	type pref struct {
		Theme string `json:"theme"`
	}

	if err := sess.Set("pref", pref{Theme: "dark"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got pref
	if !sess.Get("pref", &got) || got.Theme != "dark" {
		t.Errorf("Get: got %+v, want {Theme:dark}", got)
	}
	if !sess.Dirty() {
		t.Error("session should be dirty after Set")
	}

	sess.Delete("pref")
	if sess.Get("pref", &got) {
		t.Error("Get after Delete should fail")
	}

	if sess.Get("absent", &got) {
		t.Error("Get of absent key should fail")
	}
}

func TestManagerAttachAndSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithSweepInterval(0))
	defer store.Close()
	mgr := NewManager(store, WithTTL(time.Hour))

	// First request: no cookie, session created, cookie set.
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := mgr.Attach(w, r)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if sess.ID() == "" {
		t.Fatal("Attach: empty session ID")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName {
		t.Fatalf("Attach: expected one %s cookie, got %v", DefaultCookieName, cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	if err := sess.Set("user", "u_123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mgr.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Second request with the cookie: same session, state restored.
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(cookies[0])
	sess2, ok := mgr.Lookup(r2)
	if !ok {
		t.Fatal("Lookup: session not found")
	}
	if sess2.ID() != sess.ID() {
		t.Errorf("Lookup: ID mismatch: %s vs %s", sess2.ID(), sess.ID())
	}
	var user string
	if !sess2.Get("user", &user) || user != "u_123" {
		t.Errorf("restored value: got %q, want u_123", user)
	}
}

func TestManagerDestroy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithSweepInterval(0))
	defer store.Close()
	mgr := NewManager(store)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := mgr.Attach(w, r)
	_ = mgr.Save(ctx, sess)

	w2 := httptest.NewRecorder()
	if err := mgr.Destroy(ctx, w2, sess); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	cookies := w2.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("Destroy should expire the cookie, got %v", cookies)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.ID()})
	if _, ok := mgr.Lookup(r2); ok {
		t.Error("Lookup after Destroy should fail")
	}
}
