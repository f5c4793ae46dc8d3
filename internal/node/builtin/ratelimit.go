package builtin

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// HandleRejected is the output handle for messages a rate_limit or debounce
// node suppresses. Authors usually leave it unwired so suppressed messages
// drop silently; wiring it turns suppression into a visible branch.
const HandleRejected = "rejected"

// rateLimitNode throttles messages through a token bucket, keyed either per
// originator or globally for the node. Unlike chain admission this is a
// smoothing limiter: budget refills continuously.
type rateLimitNode struct {
	ratePerSec float64
	burst      int
	perKey     bool

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newRateLimitNode(config map[string]any) (node.Handler, error) {
	return &rateLimitNode{
		ratePerSec: cfgFloat(config, "ratePerSecond", 1),
		burst:      cfgInt(config, "burst", 1),
		perKey:     cfgBool(config, "perOriginator", true),
		limiters:   make(map[string]*rate.Limiter),
	}, nil
}

func (h *rateLimitNode) limiter(key string) *rate.Limiter {
	h.mu.RLock()
	l, ok := h.limiters[key]
	h.mu.RUnlock()
	if ok {
		return l
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok = h.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(h.ratePerSec), h.burst)
	h.limiters[key] = l
	return l
}

func (h *rateLimitNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	key := ""
	if h.perKey {
		key = msg.Meta.Originator
	}
	if h.limiter(key).Allow() {
		return node.Success(msg), nil
	}
	return node.Emit(HandleRejected, msg), nil
}

// debounceNode suppresses repeats of the same key inside a sliding window.
// The key defaults to the originator; a keyField switches it to a payload
// field so, for example, repeated alarms for one sensor collapse.
type debounceNode struct {
	interval time.Duration
	keyField string

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

func newDebounceNode(config map[string]any) (node.Handler, error) {
	return &debounceNode{
		interval: time.Duration(cfgInt(config, "intervalMs", 1000)) * time.Millisecond,
		keyField: cfgString(config, "keyField", ""),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

func (h *debounceNode) key(msg *message.Message) string {
	if h.keyField == "" {
		return msg.Meta.Originator
	}
	if v, ok := lookupPath(msg.Payload, h.keyField); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return msg.Meta.Originator
}

func (h *debounceNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	key := h.key(msg)
	now := h.now()

	h.mu.Lock()
	last, seen := h.lastSeen[key]
	suppressed := seen && now.Sub(last) < h.interval
	if !suppressed {
		h.lastSeen[key] = now
	}
	h.mu.Unlock()

	if suppressed {
		return node.Emit(HandleRejected, msg), nil
	}
	return node.Success(msg), nil
}
