package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := bus.Subscribe(Filter{}, 4)
	defer unsub()

	chainID := types.NewID()
	bus.Publish(New(TypeExecutionCompleted).WithTenant("tenant-a").WithChain(chainID))

	e := receive(t, ch)
	assert.Equal(t, TypeExecutionCompleted, e.Type)
	assert.Equal(t, "tenant-a", e.TenantID)
	assert.Equal(t, chainID, e.ChainID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestBus_Filter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := bus.Subscribe(Filter{
		Types:    []Type{TypeAdmissionRejected},
		TenantID: "tenant-a",
	}, 4)
	defer unsub()

	bus.Publish(New(TypeExecutionCompleted).WithTenant("tenant-a"))
	bus.Publish(New(TypeAdmissionRejected).WithTenant("tenant-b"))
	bus.Publish(New(TypeAdmissionRejected).WithTenant("tenant-a").WithData("reason", "rate_limited"))

	e := receive(t, ch)
	assert.Equal(t, TypeAdmissionRejected, e.Type)
	assert.Equal(t, "tenant-a", e.TenantID)
	assert.Equal(t, "rate_limited", e.Data["reason"])

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %v", extra)
	default:
	}
}

func TestBus_NonBlockingPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, unsub := bus.Subscribe(Filter{}, 1)
	defer unsub()

	// second publish overflows the buffer of the idle subscriber
	bus.Publish(New(TypeNodeFailed))
	bus.Publish(New(TypeNodeFailed))

	assert.Equal(t, int64(1), bus.Dropped())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub := bus.Subscribe(Filter{}, 4)
	unsub()
	unsub() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic or deliver
	bus.Publish(New(TypeMessageDropped))
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(Filter{}, 4)

	bus.Close()
	bus.Close() // idempotent

	_, open := <-ch
	require.False(t, open)

	bus.Publish(New(TypeMessageDropped)) // no-op after close

	late, _ := bus.Subscribe(Filter{}, 4)
	_, open = <-late
	assert.False(t, open)
}

func TestFilter_Matches(t *testing.T) {
	chainID := types.NewID()
	e := New(TypeExecutionAbandoned).WithTenant("tenant-a").WithChain(chainID)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches all", Filter{}, true},
		{"type match", Filter{Types: []Type{TypeExecutionAbandoned}}, true},
		{"type mismatch", Filter{Types: []Type{TypeExecutionCompleted}}, false},
		{"tenant mismatch", Filter{TenantID: "tenant-b"}, false},
		{"chain match", Filter{ChainID: chainID}, true},
		{"chain mismatch", Filter{ChainID: types.NewID()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(e))
		})
	}
}
