package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// MemoryStore is a map-backed ChainStore safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	chains    map[types.ID]*chain.Chain
	validator *chain.Validator
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithValidator makes Activate run graph validation before flipping status.
func WithValidator(v *chain.Validator) MemoryOption {
	return func(s *MemoryStore) { s.validator = v }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{chains: make(map[types.ID]*chain.Chain)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save implements ChainStore.
func (s *MemoryStore) Save(ctx context.Context, c *chain.Chain) error {
	if c == nil || c.ID.IsZero() {
		return types.NewError(types.STORE_QUERY_FAILED, "chain has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c.Clone()
	stored.UpdatedAt = time.Now().UTC()
	if existing, ok := s.chains[c.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.chains[c.ID] = stored
	return nil
}

// Get implements ChainStore.
func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*chain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// ListActive implements ChainStore.
func (s *MemoryStore) ListActive(ctx context.Context, tenantID string) ([]*chain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chain.Chain
	for _, c := range s.chains {
		if c.TenantID == tenantID && c.Status == chain.StatusActive {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// List implements ChainStore.
func (s *MemoryStore) List(ctx context.Context, tenantID string) ([]*chain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chain.Chain
	for _, c := range s.chains {
		if c.TenantID == tenantID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// Activate implements ChainStore.
func (s *MemoryStore) Activate(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[id]
	if !ok {
		return ErrNotFound
	}

	if s.validator != nil {
		if res := s.validator.Validate(c); !res.Valid() {
			return res.Err()
		}
	}

	var siblings []*chain.Chain
	for _, other := range s.chains {
		if other.TenantID == c.TenantID {
			siblings = append(siblings, other)
		}
	}
	if conflict := activationConflict(c, siblings); conflict != nil {
		return types.NewError(types.CHAIN_ACTIVE_CONFLICT,
			fmt.Sprintf("chain %q is already active with priority %d and an overlapping scope",
				conflict.Name, conflict.Priority))
	}

	c.Status = chain.StatusActive
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Disable implements ChainStore.
func (s *MemoryStore) Disable(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = chain.StatusDisabled
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete implements ChainStore.
func (s *MemoryStore) Delete(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[id]; !ok {
		return ErrNotFound
	}
	delete(s.chains, id)
	return nil
}
