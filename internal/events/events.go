// Package events carries engine observability signals: completed and
// abandoned executions, admission rejections, and dropped messages. The bus
// is in-process, buffered, and non-blocking; a slow subscriber loses events
// rather than stalling the dispatcher.
package events

import (
	"time"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Type identifies an event kind.
type Type string

const (
	// TypeExecutionCompleted fires when every branch of an execution ends.
	TypeExecutionCompleted Type = "execution.completed"

	// TypeExecutionAbandoned fires when a node faulted with no failure edge
	// and no error handler, or the chain deadline expired.
	TypeExecutionAbandoned Type = "execution.abandoned"

	// TypeAdmissionRejected fires when rate limiting or debouncing suppresses
	// a message before any node runs.
	TypeAdmissionRejected Type = "admission.rejected"

	// TypeMessageDropped fires when no active chain covers a message's
	// tenant and subject type.
	TypeMessageDropped Type = "message.dropped"

	// TypeNodeFailed fires per node fault, before error routing resolves it.
	TypeNodeFailed Type = "node.failed"
)

// Event is one observability record. Data carries kind-specific detail such
// as the trace, the rejection reason, or the faulting node.
type Event struct {
	Type        Type           `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	TenantID    string         `json:"tenantId,omitempty"`
	ChainID     types.ID       `json:"chainId,omitempty"`
	ExecutionID types.ID       `json:"executionId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(t Type) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: map[string]any{}}
}

// WithTenant sets the tenant.
func (e Event) WithTenant(tenantID string) Event {
	e.TenantID = tenantID
	return e
}

// WithChain sets the chain.
func (e Event) WithChain(chainID types.ID) Event {
	e.ChainID = chainID
	return e
}

// WithExecution sets the execution.
func (e Event) WithExecution(executionID types.ID) Event {
	e.ExecutionID = executionID
	return e
}

// WithData adds a detail field.
func (e Event) WithData(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// Filter selects which events a subscriber receives. Zero values match
// everything.
type Filter struct {
	Types    []Type
	TenantID string
	ChainID  types.ID
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.TenantID != "" && f.TenantID != e.TenantID {
		return false
	}
	if !f.ChainID.IsZero() && f.ChainID != e.ChainID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}
