package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/diazhh/petroedge-sub001/internal/observability"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 256

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	closed  bool
	dropped atomic.Int64
	logger  *slog.Logger
}

type subscriber struct {
	filter Filter
	ch     chan Event
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to note dropped events.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[int]*subscriber),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("event dropped, subscriber buffer full",
				"type", string(e.Type), "tenant", e.TenantID)
		}
	}
}

// Subscribe registers a filtered subscriber and returns its channel plus an
// unsubscribe func. buffer <= 0 uses DefaultBuffer. The channel closes on
// unsubscribe or bus close.
func (b *Bus) Subscribe(filter Filter, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{filter: filter, ch: make(chan Event, buffer)}
	b.subs[id] = sub

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, unsubscribe
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
