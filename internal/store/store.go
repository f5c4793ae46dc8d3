// Package store persists rule chains. Two implementations ship: an
// in-memory store for tests and single-node deployments, and a PostgreSQL
// store for the platform. Both enforce the activation invariant: at most one
// ACTIVE chain per tenant, overlapping scope, and priority.
package store

import (
	"context"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// ErrNotFound is returned when a chain ID does not exist.
var ErrNotFound = types.NewError(types.CHAIN_NOT_FOUND, "chain not found")

// ChainStore is the persistence contract the engine resolves chains from.
type ChainStore interface {
	// Save creates or replaces a chain. Replacing bumps UpdatedAt; callers
	// invalidate resolution caches afterwards.
	Save(ctx context.Context, c *chain.Chain) error

	// Get returns a copy of the chain or ErrNotFound.
	Get(ctx context.Context, id types.ID) (*chain.Chain, error)

	// ListActive returns copies of every ACTIVE chain of the tenant.
	ListActive(ctx context.Context, tenantID string) ([]*chain.Chain, error)

	// List returns copies of every chain of the tenant regardless of status.
	List(ctx context.Context, tenantID string) ([]*chain.Chain, error)

	// Activate validates the chain graph, enforces the single-active
	// uniqueness invariant, and flips the status to ACTIVE.
	Activate(ctx context.Context, id types.ID) error

	// Disable flips the status to DISABLED.
	Disable(ctx context.Context, id types.ID) error

	// Delete removes the chain.
	Delete(ctx context.Context, id types.ID) error
}

// activationConflict finds an ACTIVE sibling that would collide with c on
// activation: same tenant, overlapping scope, same priority.
func activationConflict(c *chain.Chain, siblings []*chain.Chain) *chain.Chain {
	for _, other := range siblings {
		if other.ID == c.ID || other.Status != chain.StatusActive {
			continue
		}
		if other.Priority == c.Priority && other.Scope.Overlaps(c.Scope) {
			return other
		}
	}
	return nil
}
