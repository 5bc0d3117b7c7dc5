// Package urlstate synchronizes the dashboard's search and pagination state
// with the navigable URL.
//
// The Controller reconciles two independently updated copies of the search
// text: a fast local echo (what the input box shows) and the slower,
// URL-persisted parameter set the data layer reads. Keystrokes update the
// echo immediately and commit to the parameter set only after a quiet
// period; external navigation (back/forward, shared links) flows the other
// way and overwrites the echo with no delay.
//
// Example:
//
//	ctl := urlstate.NewController(params, apply,
//		urlstate.Replace, urlstate.WithDebounce(500*time.Millisecond))
//	ctl.Input("he")   // echo updates now, URL after the debounce
//	ctl.Sync(params)  // host calls this on every URL change
//	ctl.Close()       // on teardown, cancels any pending commit
package urlstate

import (
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/pkg/reactive"
)

// DefaultDebounce is the quiet period before a keystroke is committed.
const DefaultDebounce = 500 * time.Millisecond

// Well-known query keys. Extra parameters use their own keys and pass
// through commits untouched.
const (
	KeySearch = "q"
	KeyPage   = "page"
)

// Mode determines how a committed URL update is applied to history.
type Mode int

const (
	// ModePush adds a new history entry.
	ModePush Mode = iota

	// ModeReplace replaces the current history entry (no back-button spam).
	ModeReplace
)

// Params is the URL-persisted parameter set the controller reconciles with.
// Extra holds parameters the controller does not interpret; every commit
// carries them forward verbatim.
type Params struct {
	Search string
	Page   int
	Extra  url.Values
}

// ParseParams extracts Params from raw query values. Unknown keys land in
// Extra. A missing or malformed page defaults to 1; pages below 1 clamp to 1.
func ParseParams(values url.Values) Params {
	p := Params{Page: 1}
	for key, vals := range values {
		switch key {
		case KeySearch:
			if len(vals) > 0 {
				p.Search = vals[0]
			}
		case KeyPage:
			if len(vals) > 0 {
				if n, err := strconv.Atoi(vals[0]); err == nil && n >= 1 {
					p.Page = n
				}
			}
		default:
			if p.Extra == nil {
				p.Extra = url.Values{}
			}
			p.Extra[key] = append([]string(nil), vals...)
		}
	}
	return p
}

// Encode renders the params as query values. The search key is omitted when
// empty and the page key when 1, keeping shareable URLs minimal.
func (p Params) Encode() url.Values {
	values := url.Values{}
	if p.Search != "" {
		values.Set(KeySearch, p.Search)
	}
	if p.Page > 1 {
		values.Set(KeyPage, strconv.Itoa(p.Page))
	}
	for key, vals := range p.Extra {
		values[key] = append([]string(nil), vals...)
	}
	return values
}

// Clone returns a deep copy. Params are passed across goroutine boundaries
// (timer callbacks, websocket writers), so shared Extra maps are never
// aliased.
func (p Params) Clone() Params {
	out := Params{Search: p.Search, Page: p.Page}
	if p.Extra != nil {
		out.Extra = url.Values{}
		for key, vals := range p.Extra {
			out.Extra[key] = append([]string(nil), vals...)
		}
	}
	return out
}

// Option configures a Controller.
type Option interface {
	apply(*config)
}

type config struct {
	mode     Mode
	debounce time.Duration
}

// Mode options as values to mirror how they read at call sites.
var (
	// Push creates a new history entry per commit.
	Push Option = modeOption{mode: ModePush}

	// Replace updates the URL without creating history entries.
	// Use for search inputs and filters.
	Replace Option = modeOption{mode: ModeReplace}
)

type modeOption struct {
	mode Mode
}

func (o modeOption) apply(c *config) {
	c.mode = o.mode
}

type debounceOption struct {
	d time.Duration
}

func (o debounceOption) apply(c *config) {
	c.debounce = o.d
}

// WithDebounce sets the quiet period before a keystroke commits.
// A zero or negative duration commits synchronously on every input.
func WithDebounce(d time.Duration) Option {
	return debounceOption{d: d}
}

// ApplyFunc commits a full replacement of the tracked parameters. The mode
// tells the host how to record the change in navigation history.
type ApplyFunc func(p Params, mode Mode)

// Controller owns the local input echo and its reconciliation with the
// URL-persisted parameter set.
//
// At most one debounce timer is live at a time; each keystroke supersedes
// the previous timer, so only the last keystroke of a typing burst commits.
// Clearing the input bypasses the debounce entirely. Every commit resets the
// page to 1 — stale deep-page state from a previous query is never reused.
type Controller struct {
	applyFn ApplyFunc
	cfg     config
	echo    *reactive.Signal[string]

	mu      sync.Mutex
	current Params
	timer   *time.Timer
	closed  bool
}

// NewController creates a controller seeded from the current parameter set.
// apply is invoked for every commit; it must not be nil.
func NewController(initial Params, apply ApplyFunc, opts ...Option) *Controller {
	cfg := config{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if initial.Page < 1 {
		initial.Page = 1
	}
	return &Controller{
		applyFn: apply,
		cfg:     cfg,
		echo:    reactive.NewSignal(initial.Search),
		current: initial.Clone(),
	}
}

// Value returns the string the search input should display. Side-effect free.
func (c *Controller) Value() string {
	return c.echo.Get()
}

// Echo exposes the display value as a signal so the host can subscribe a
// render without polling.
func (c *Controller) Echo() *reactive.Signal[string] {
	return c.echo
}

// Params returns a copy of the controller's view of the parameter set.
func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// Input records a keystroke. The echo updates synchronously; the commit is
// deferred by the debounce interval, except that clearing a non-empty search
// writes through immediately.
func (c *Controller) Input(next string) {
	c.echo.Set(next)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()

	// Instant-clear fast path: clearing is a final intent, there is no
	// point waiting for more typing.
	if next == "" && c.current.Search != "" {
		committed := c.commitLocked("")
		c.mu.Unlock()
		c.applyFn(committed, c.cfg.mode)
		return
	}

	if c.cfg.debounce <= 0 {
		committed, ok := c.commitIfChangedLocked(next)
		c.mu.Unlock()
		if ok {
			c.applyFn(committed, c.cfg.mode)
		}
		return
	}

	c.timer = time.AfterFunc(c.cfg.debounce, func() {
		c.fire(next)
	})
	c.mu.Unlock()
}

// Sync reconciles an external parameter change (navigation, shared link,
// or the echo of this controller's own committed write — the controller
// cannot tell those apart, and does not need to: when the echo already
// matches, Sync is a no-op).
//
// Sync does not cancel a pending timer. If the external update already made
// the pending keystroke's value current, the timer's equality check skips
// the redundant commit at expiry.
func (c *Controller) Sync(p Params) {
	if p.Page < 1 {
		p.Page = 1
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.current = p.Clone()
	c.mu.Unlock()

	c.echo.Set(p.Search)
}

// Close cancels any pending commit. Further Input and Sync calls are
// ignored. A timer that already fired but has not yet taken the lock
// observes closed and does nothing, so no write can land after teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

// fire runs when the debounce timer expires.
func (c *Controller) fire(next string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	committed, ok := c.commitIfChangedLocked(next)
	c.mu.Unlock()
	if ok {
		c.applyFn(committed, c.cfg.mode)
	}
}

// commitIfChangedLocked commits next unless it already equals the current
// search (a newer keystroke superseded it, or an external update made it
// current first). Exact string equality, no normalization.
func (c *Controller) commitIfChangedLocked(next string) (Params, bool) {
	if next == c.current.Search {
		return Params{}, false
	}
	return c.commitLocked(next), true
}

// commitLocked builds the replacement parameter set: new search, page reset
// to 1, extra parameters carried forward verbatim. The apply call happens
// outside the lock; callers get a clone that is safe to hand off.
func (c *Controller) commitLocked(next string) Params {
	committed := Params{
		Search: next,
		Page:   1,
		Extra:  c.current.Extra,
	}
	c.current = committed.Clone()
	return c.current.Clone()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
