// Package engine is the rule chain dispatcher: it resolves the chain a
// message belongs to, applies admission control, and walks the graph
// breadth-first, routing each node's outcome along handle-labeled edges.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/diazhh/petroedge-sub001/internal/admission"
	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/events"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/observability"
	"github.com/diazhh/petroedge-sub001/internal/store"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// DefaultCacheTTL bounds how long a resolved chain serves executions before
// the store is consulted again.
const DefaultCacheTTL = 600 * time.Second

// DefaultChainTimeout applies when a chain's policy sets none.
const DefaultChainTimeout = 30 * time.Second

// maxInvokeDepth bounds chains invoking chains; graph validation cannot see
// cross-chain cycles.
const maxInvokeDepth = 5

// ErrNoMatchingChain is returned by Submit when no active chain covers the
// message. The message is dropped, which is an event, not a failure.
var ErrNoMatchingChain = types.NewError(types.NO_MATCHING_CHAIN, "no active chain covers this message")

// Engine resolves, compiles, and executes rule chains.
type Engine struct {
	store          store.ChainStore
	registry       *node.Registry
	validator      *chain.Validator
	admission      *admission.Controller
	bus            *events.Bus
	logger         *slog.Logger
	tracer         trace.Tracer
	cacheTTL       time.Duration
	defaultTimeout time.Duration

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	wg sync.WaitGroup
}

type cacheEntry struct {
	compiled *compiledChain
	expires  time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the OpenTelemetry tracer for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithEventBus sets the observability event bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithAdmission replaces the admission controller.
func WithAdmission(ctrl *admission.Controller) Option {
	return func(e *Engine) { e.admission = ctrl }
}

// WithCacheTTL overrides the resolution cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// WithDefaultTimeout overrides the fallback chain timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// New creates an engine over the given store and node registry.
func New(st store.ChainStore, registry *node.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		registry:       registry,
		validator:      chain.NewValidator(registry),
		admission:      admission.NewController(),
		logger:         observability.NopLogger(),
		tracer:         observability.Tracer("rule-engine"),
		cacheTTL:       DefaultCacheTTL,
		defaultTimeout: DefaultChainTimeout,
		cache:          make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = events.NewBus(events.WithLogger(e.logger))
	}
	return e
}

// Bus exposes the engine's event bus for subscribers.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Validator exposes the graph validator built over the engine's registry.
func (e *Engine) Validator() *chain.Validator {
	return e.validator
}

// Shutdown waits for in-flight executions to finish or ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.bus.Close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cacheKey(tenantID, subjectType string) string {
	return tenantID + "\x00" + subjectType
}

// InvalidateTenant drops every cached resolution and compiled chain for the
// tenant. Call after any chain write; the next message recompiles.
func (e *Engine) InvalidateTenant(tenantID string) {
	prefix := tenantID + "\x00"
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(e.cache, key)
		}
	}
}

// resolve returns the compiled chain serving (tenant, subjectType): the
// highest-priority ACTIVE chain whose scope covers the subject type, ties
// broken by creation time. Results cache for cacheTTL.
func (e *Engine) resolve(ctx context.Context, tenantID, subjectType string) (*compiledChain, error) {
	key := cacheKey(tenantID, subjectType)

	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.compiled, nil
	}

	chains, err := e.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "list active chains", err)
	}

	var candidates []*chain.Chain
	for _, c := range chains {
		if c.Scope.Covers(subjectType) {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, c := range candidates {
		compiled, err := e.compile(c)
		if err != nil {
			// a broken stored chain must not take the tenant down; the next
			// candidate serves instead
			e.logger.Error("compile chain failed, skipping",
				"chain", c.Name, "chainId", c.ID.String(), "tenant", tenantID, "error", err)
			continue
		}
		e.mu.Lock()
		e.cache[key] = &cacheEntry{compiled: compiled, expires: time.Now().Add(e.cacheTTL)}
		e.mu.Unlock()
		return compiled, nil
	}
	return nil, ErrNoMatchingChain
}

// compiledByID compiles a chain fetched by ID, for direct invocation by
// rule_chain nodes. Shares the cache under an ID-scoped key.
func (e *Engine) compiledByID(ctx context.Context, id types.ID) (*compiledChain, error) {
	key := "id\x00" + id.String()

	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.compiled, nil
	}

	c, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	compiled, err := e.compile(c)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = &cacheEntry{compiled: compiled, expires: time.Now().Add(e.cacheTTL)}
	e.mu.Unlock()
	return compiled, nil
}
