// Package admission gates executions before any node runs. Two per-process
// controls apply per chain: a fixed-window execution cap and a sliding
// dedupe-key debounce. Counters are process-local; horizontally scaled
// engines each enforce their own share.
package admission

import (
	"sync"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonRateLimited Reason = "rate_limited"
	ReasonDebounced   Reason = "debounced"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	Reason   Reason
}

var admitted = Decision{Admitted: true}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Window is the fixed rate-limit window length.
const Window = time.Minute

type window struct {
	start time.Time
	count int
}

type debounceKey struct {
	chainID types.ID
	dedupe  string
}

// Controller tracks per-chain admission state. Checks and counter updates
// happen atomically under one lock so concurrent submissions cannot both
// claim the last slot of a window.
type Controller struct {
	mu       sync.Mutex
	windows  map[types.ID]*window
	lastSeen map[debounceKey]time.Time
	now      func() time.Time
}

// NewController creates an admission controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		windows:  make(map[types.ID]*window),
		lastSeen: make(map[debounceKey]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit applies the chain's policy to one incoming message. dedupeKey is
// empty when the message carries no dedupe identity; debouncing is skipped
// for it then. Order matters: debounce first, so a suppressed duplicate does
// not consume rate-limit budget.
func (c *Controller) Admit(chainID types.ID, policy chain.ExecutionPolicy, dedupeKey string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	var dkey debounceKey
	armDebounce := false
	if policy.DebounceMs > 0 && dedupeKey != "" {
		dkey = debounceKey{chainID: chainID, dedupe: dedupeKey}
		if last, ok := c.lastSeen[dkey]; ok && now.Sub(last) < policy.Debounce() {
			return Decision{Reason: ReasonDebounced}
		}
		armDebounce = true
	}

	if policy.MaxExecutionsPerMinute > 0 {
		w := c.windows[chainID]
		if w == nil || now.Sub(w.start) >= Window {
			w = &window{start: now}
			c.windows[chainID] = w
		}
		if w.count >= policy.MaxExecutionsPerMinute {
			return Decision{Reason: ReasonRateLimited}
		}
		w.count++
	}

	// The window starts at the last admitted message. A rate-rejected one
	// must not arm it, or a key could be debounced without ever running.
	if armDebounce {
		c.lastSeen[dkey] = now
	}
	return admitted
}

// Forget drops all state for a chain, used when a chain is deleted or
// replaced so a stale window cannot throttle its successor.
func (c *Controller) Forget(chainID types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.windows, chainID)
	for key := range c.lastSeen {
		if key.chainID == chainID {
			delete(c.lastSeen, key)
		}
	}
}

// Sweep removes debounce entries older than maxAge. Call periodically from a
// maintenance loop to bound memory on high-cardinality dedupe keys.
func (c *Controller) Sweep(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, last := range c.lastSeen {
		if now.Sub(last) > maxAge {
			delete(c.lastSeen, key)
			removed++
		}
	}
	return removed
}
