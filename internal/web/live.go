package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/urlstate"
)

// clientFrame is a message from the dashboard client.
type clientFrame struct {
	// Type is "input" (search keystroke), "url" (the browser URL changed
	// outside this session: popstate, shared link) or "refresh".
	Type string `json:"type"`

	// Value is the search input text for "input" frames.
	Value string `json:"value,omitempty"`

	// Query is the raw URL query string for "url" frames.
	Query string `json:"query,omitempty"`
}

// serverFrame is a message to the dashboard client.
type serverFrame struct {
	// Type is "url" (history patch), "rows" (list snapshot) or "notice".
	Type string `json:"type"`

	// Mode is "push" or "replace" for "url" frames.
	Mode  string `json:"mode,omitempty"`
	Query string `json:"query,omitempty"`

	// Echo carries the search input's display value with "rows" frames so
	// a restored page renders the box and the data from one message.
	Echo string            `json:"echo,omitempty"`
	Rows *store.ListResult `json:"rows,omitempty"`

	Notice *notice `json:"notice,omitempty"`
}

type notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// queryCache caches list pages for one live session. It is constructed on
// websocket attach and torn down with the session — cached state is never
// shared across sessions or stored at module level.
type queryCache struct {
	mu      sync.Mutex
	entries map[cacheKey]store.ListResult
}

type cacheKey struct {
	query string
	page  int
	size  int
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[cacheKey]store.ListResult)}
}

// Get loads through the cache.
func (c *queryCache) Get(ctx context.Context, db *store.DB, opts store.ListOptions) (store.ListResult, error) {
	key := cacheKey{query: opts.Query, page: opts.Page, size: opts.PageSize}

	c.mu.Lock()
	if cached, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, err := db.List(ctx, opts)
	if err != nil {
		return store.ListResult{}, err
	}

	c.mu.Lock()
	c.entries[key] = result
	c.mu.Unlock()
	return result, nil
}

// Invalidate drops every cached page.
func (c *queryCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]store.ListResult)
	c.mu.Unlock()
}

// Len reports the number of cached pages.
func (c *queryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Session cookies already gate this endpoint; same-origin enforcement
	// happens at the proxy in deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveSession is one connected dashboard: a websocket, the session's
// search/pagination controller, and its private query cache.
type liveSession struct {
	server     *Server
	conn       *websocket.Conn
	controller *urlstate.Controller
	cache      *queryCache
	logger     *slog.Logger

	send      chan serverFrame
	closeOnce sync.Once
	done      chan struct{}
}

// handleLive upgrades the connection and runs the session until the client
// disconnects or the server shuts down.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	sess := &liveSession{
		server: s,
		conn:   conn,
		cache:  newQueryCache(),
		logger: s.logger.With("live", conn.RemoteAddr().String()),
		send:   make(chan serverFrame, 32),
		done:   make(chan struct{}),
	}

	// The controller is seeded from the URL the dashboard loaded with and
	// commits through this session's outbound frame queue.
	initial := urlstate.ParseParams(r.URL.Query())
	nav := urlstate.NewNavigator(func(patch urlstate.Patch) {
		mode := "push"
		if patch.Mode == urlstate.ModeReplace {
			mode = "replace"
		}
		sess.enqueue(serverFrame{Type: "url", Mode: mode, Query: patch.Values.Encode()})
	})
	debounce := time.Duration(s.cfg.UI.SearchDebounceMS) * time.Millisecond
	sess.controller = urlstate.NewController(initial,
		func(p urlstate.Params, mode urlstate.Mode) {
			nav.Apply(p, mode)
			sess.pushRows(p)
		},
		urlstate.Replace,
		urlstate.WithDebounce(debounce),
	)

	s.live.Add(sess)
	s.metrics.liveSessions.Inc()
	defer func() {
		s.live.Remove(sess)
		s.metrics.liveSessions.Dec()
		sess.close()
	}()

	go sess.writePump()
	sess.pushRows(initial)
	sess.readPump()
}

// readPump processes client frames until the connection drops.
func (sess *liveSession) readPump() {
	for {
		var frame clientFrame
		if err := sess.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug("websocket read failed", "err", err)
			}
			return
		}

		switch frame.Type {
		case "input":
			sess.controller.Input(frame.Value)
		case "url":
			values, err := url.ParseQuery(frame.Query)
			if err != nil {
				sess.logger.Debug("bad url frame", "query", frame.Query, "err", err)
				continue
			}
			params := urlstate.ParseParams(values)
			sess.controller.Sync(params)
			sess.pushRows(params)
		case "refresh":
			sess.cache.Invalidate()
			sess.pushRows(sess.controller.Params())
		default:
			sess.logger.Debug("unknown frame type", "type", frame.Type)
		}
	}
}

// writePump drains the outbound queue onto the socket.
func (sess *liveSession) writePump() {
	for {
		select {
		case <-sess.done:
			return
		case frame := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteJSON(frame); err != nil {
				sess.logger.Debug("websocket write failed", "err", err)
				sess.close()
				return
			}
		}
	}
}

// pushRows queries (through the session cache) and queues a rows frame.
func (sess *liveSession) pushRows(p urlstate.Params) {
	opts := store.ListOptions{
		Query:    p.Search,
		Page:     p.Page,
		PageSize: sess.server.cfg.UI.PageSize,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sess.cache.Get(ctx, sess.server.store, opts)
	if err != nil {
		sess.logger.Warn("list query failed", "err", err)
		sess.enqueue(serverFrame{Type: "notice", Notice: &notice{
			Level: "error", Message: "could not load workflows",
		}})
		return
	}
	sess.enqueue(serverFrame{Type: "rows", Echo: sess.controller.Value(), Rows: &result})
}

// enqueue queues a frame without blocking; a slow client loses frames
// rather than stalling commits.
func (sess *liveSession) enqueue(frame serverFrame) {
	select {
	case sess.send <- frame:
	case <-sess.done:
	default:
		sess.logger.Debug("outbound queue full, frame dropped", "type", frame.Type)
	}
}

// close tears the session down: the controller's pending timer is cancelled
// so no commit can land on a dead connection.
func (sess *liveSession) close() {
	sess.closeOnce.Do(func() {
		sess.controller.Close()
		close(sess.done)
		_ = sess.conn.Close()
	})
}

// liveRegistry tracks connected sessions for fan-out.
type liveRegistry struct {
	server *Server

	mu       sync.Mutex
	sessions map[*liveSession]struct{}
}

func newLiveRegistry(server *Server) *liveRegistry {
	return &liveRegistry{
		server:   server,
		sessions: make(map[*liveSession]struct{}),
	}
}

func (r *liveRegistry) Add(sess *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess] = struct{}{}
}

func (r *liveRegistry) Remove(sess *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sess)
}

func (r *liveRegistry) snapshot() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*liveSession, 0, len(r.sessions))
	for sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// InvalidateAll drops every session's cache and pushes fresh rows.
func (r *liveRegistry) InvalidateAll() {
	for _, sess := range r.snapshot() {
		sess.cache.Invalidate()
		sess.pushRows(sess.controller.Params())
	}
}

// NotifyAll queues a notice on every session.
func (r *liveRegistry) NotifyAll(n notice) {
	for _, sess := range r.snapshot() {
		frame := serverFrame{Type: "notice", Notice: &n}
		sess.enqueue(frame)
	}
}

// CloseAll tears down every session; used on server shutdown.
func (r *liveRegistry) CloseAll() {
	for _, sess := range r.snapshot() {
		sess.close()
	}
}
