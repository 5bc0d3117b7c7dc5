package web

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowdeck/flowdeck/internal/store"
)

func TestQueryCache(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := db.Create(ctx, "alpha", "", "u_1"); err != nil {
		t.Fatal(err)
	}

	cache := newQueryCache()
	opts := store.ListOptions{Page: 1, PageSize: 20}

	first, err := cache.Get(ctx, db, opts)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Total != 1 || cache.Len() != 1 {
		t.Fatalf("first load: total=%d len=%d", first.Total, cache.Len())
	}

	// A second workflow is invisible until invalidation: the cached page
	// is served as-is.
	if _, err := db.Create(ctx, "beta", "", "u_1"); err != nil {
		t.Fatal(err)
	}
	cached, err := cache.Get(ctx, db, opts)
	if err != nil {
		t.Fatalf("Get cached: %v", err)
	}
	if cached.Total != 1 {
		t.Errorf("cached page total: got %d, want 1", cached.Total)
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Errorf("Len after Invalidate: %d", cache.Len())
	}
	fresh, err := cache.Get(ctx, db, opts)
	if err != nil {
		t.Fatalf("Get fresh: %v", err)
	}
	if fresh.Total != 2 {
		t.Errorf("fresh total: got %d, want 2", fresh.Total)
	}
}

// dialLive opens an authenticated websocket to /live.
func dialLive(t *testing.T, app *testApp, rawQuery string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(app.http.URL, "http") + "/live"
	if rawQuery != "" {
		wsURL += "?" + rawQuery
	}
	header := http.Header{"Cookie": {app.cookie.String()}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestLiveSession(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	if _, err := app.store.Create(ctx, "alpha pipeline", "", "u_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := app.store.Create(ctx, "beta pipeline", "", "u_1"); err != nil {
		t.Fatal(err)
	}

	conn := dialLive(t, app, "")

	initial := readFrame(t, conn)
	if initial.Type != "rows" || initial.Rows == nil || initial.Rows.Total != 2 {
		t.Fatalf("initial frame: %+v", initial)
	}

	t.Run("DebouncedSearchCommit", func(t *testing.T) {
		// A burst of keystrokes yields one url patch and one rows frame
		// for the final value.
		for _, v := range []string{"a", "al", "alpha"} {
			if err := conn.WriteJSON(clientFrame{Type: "input", Value: v}); err != nil {
				t.Fatal(err)
			}
		}

		urlFrame := readFrame(t, conn)
		if urlFrame.Type != "url" {
			t.Fatalf("expected url frame, got %+v", urlFrame)
		}
		if !strings.Contains(urlFrame.Query, "q=alpha") {
			t.Errorf("url frame query: %q", urlFrame.Query)
		}

		rows := readFrame(t, conn)
		if rows.Type != "rows" || rows.Rows == nil {
			t.Fatalf("expected rows frame, got %+v", rows)
		}
		if rows.Rows.Total != 1 || rows.Echo != "alpha" {
			t.Errorf("search rows: total=%d echo=%q", rows.Rows.Total, rows.Echo)
		}
	})

	t.Run("ClearCommitsImmediately", func(t *testing.T) {
		if err := conn.WriteJSON(clientFrame{Type: "input", Value: ""}); err != nil {
			t.Fatal(err)
		}
		urlFrame := readFrame(t, conn)
		if urlFrame.Type != "url" || strings.Contains(urlFrame.Query, "q=") {
			t.Fatalf("clear url frame: %+v", urlFrame)
		}
		rows := readFrame(t, conn)
		if rows.Type != "rows" || rows.Rows.Total != 2 || rows.Echo != "" {
			t.Fatalf("clear rows: %+v", rows)
		}
	})

	t.Run("URLFrameSyncsWithoutCommit", func(t *testing.T) {
		if err := conn.WriteJSON(clientFrame{Type: "url", Query: "q=beta&page=1"}); err != nil {
			t.Fatal(err)
		}
		// A synced URL produces rows only; the history entry came from
		// the browser, so no url frame is echoed back.
		rows := readFrame(t, conn)
		if rows.Type != "rows" || rows.Rows.Total != 1 || rows.Echo != "beta" {
			t.Fatalf("synced rows: %+v", rows)
		}
	})

	t.Run("RefreshReloads", func(t *testing.T) {
		if _, err := app.store.Create(ctx, "beta follow-up", "", "u_1"); err != nil {
			t.Fatal(err)
		}
		if err := conn.WriteJSON(clientFrame{Type: "refresh"}); err != nil {
			t.Fatal(err)
		}
		rows := readFrame(t, conn)
		if rows.Type != "rows" || rows.Rows.Total != 2 {
			t.Fatalf("refresh rows: %+v", rows)
		}
	})
}

func TestLiveSessionSeedsFromURL(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	if _, err := app.store.Create(ctx, "alpha", "", "u_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := app.store.Create(ctx, "beta", "", "u_1"); err != nil {
		t.Fatal(err)
	}

	conn := dialLive(t, app, "q=alpha")
	initial := readFrame(t, conn)
	if initial.Type != "rows" || initial.Rows.Total != 1 || initial.Echo != "alpha" {
		t.Fatalf("seeded frame: %+v", initial)
	}
}

func TestInvalidateAllPushesToSessions(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	if _, err := app.store.Create(ctx, "alpha", "", "u_1"); err != nil {
		t.Fatal(err)
	}

	conn := dialLive(t, app, "")
	initial := readFrame(t, conn)
	if initial.Rows == nil || initial.Rows.Total != 1 {
		t.Fatalf("initial: %+v", initial)
	}

	// A create through the API invalidates every live session.
	_, env := app.call(t, "workflows.create", map[string]string{"name": "beta"})
	if !env.OK {
		t.Fatalf("create: %+v", env)
	}

	rows := readFrame(t, conn)
	if rows.Type != "rows" || rows.Rows.Total != 2 {
		t.Fatalf("fan-out rows: %+v", rows)
	}
}
