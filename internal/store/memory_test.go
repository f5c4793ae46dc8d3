package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

func draftChain(t *testing.T, tenantID, name string, priority int, subjectTypes ...string) *chain.Chain {
	t.Helper()
	b := chain.NewBuilder(tenantID, name).
		WithPriority(priority).
		AddNode("in", "data_source_input", nil).
		AddNode("sink", "log", nil).
		OnSuccess("in", "sink")
	if len(subjectTypes) > 0 {
		b = b.WithScope(subjectTypes...)
	}
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := draftChain(t, "tenant-a", "one", 10)

	require.NoError(t, s.Save(ctx, c))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, chain.StatusDraft, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	// returned chains are copies
	got.Name = "mutated"
	again, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", again.Name)

	require.NoError(t, s.Delete(ctx, c.ID))
	_, err = s.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, c.ID), ErrNotFound)
}

func TestMemoryStore_ListActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := draftChain(t, "tenant-a", "a", 10, "wellhead")
	b := draftChain(t, "tenant-a", "b", 20, "pump")
	other := draftChain(t, "tenant-b", "c", 10)
	for _, c := range []*chain.Chain{a, b, other} {
		require.NoError(t, s.Save(ctx, c))
	}
	require.NoError(t, s.Activate(ctx, a.ID))
	require.NoError(t, s.Activate(ctx, b.ID))

	active, err := s.ListActive(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := s.List(ctx, "tenant-b")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, chain.StatusDraft, all[0].Status)
}

func TestMemoryStore_ActivationConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := draftChain(t, "tenant-a", "first", 50, "wellhead")
	samePriority := draftChain(t, "tenant-a", "second", 50, "wellhead", "pump")
	otherPriority := draftChain(t, "tenant-a", "third", 60, "wellhead")
	disjoint := draftChain(t, "tenant-a", "fourth", 50, "separator")
	allScope := draftChain(t, "tenant-a", "fifth", 50)

	for _, c := range []*chain.Chain{first, samePriority, otherPriority, disjoint, allScope} {
		require.NoError(t, s.Save(ctx, c))
	}

	require.NoError(t, s.Activate(ctx, first.ID))

	err := s.Activate(ctx, samePriority.ID)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CHAIN_ACTIVE_CONFLICT))

	// different priority or disjoint scope coexists
	require.NoError(t, s.Activate(ctx, otherPriority.ID))
	require.NoError(t, s.Activate(ctx, disjoint.ID))

	// an all-subjects scope overlaps everything at the same priority
	err = s.Activate(ctx, allScope.ID)
	assert.True(t, types.IsCode(err, types.CHAIN_ACTIVE_CONFLICT))

	// disabling the blocker frees the slot
	require.NoError(t, s.Disable(ctx, first.ID))
	require.NoError(t, s.Disable(ctx, disjoint.ID))
	require.NoError(t, s.Activate(ctx, allScope.ID))
}

func TestMemoryStore_ActivateReActivatesSelf(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := draftChain(t, "tenant-a", "self", 10)
	require.NoError(t, s.Save(ctx, c))

	require.NoError(t, s.Activate(ctx, c.ID))
	require.NoError(t, s.Activate(ctx, c.ID), "re-activating the same chain is not a conflict")
}

func TestMemoryStore_SaveKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := draftChain(t, "tenant-a", "keep", 10)
	require.NoError(t, s.Save(ctx, c))

	first, err := s.Get(ctx, c.ID)
	require.NoError(t, err)

	c.Name = "renamed"
	require.NoError(t, s.Save(ctx, c))
	second, err := s.Get(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "renamed", second.Name)
}
