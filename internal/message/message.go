// Package message defines the unit of work that flows through a rule chain.
//
// A Message carries the tenant-scoped payload being processed plus mutable
// metadata that nodes may enrich along the way. Fan-out clones the message so
// parallel branches never observe each other's mutations.
package message

import (
	"time"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Metadata is the per-message envelope. TenantID and SubjectType drive chain
// resolution; Originator identifies the emitting asset or data source.
// Values holds node-added enrichment keyed by name.
type Metadata struct {
	TenantID    string         `json:"tenantId"`
	SubjectType string         `json:"subjectType"`
	ExecutionID types.ID       `json:"executionId,omitempty"`
	Originator  string         `json:"originator,omitempty"`
	MessageType string         `json:"messageType,omitempty"`
	ReceivedAt  time.Time      `json:"receivedAt"`
	Values      map[string]any `json:"values,omitempty"`
}

// Message is a single unit of work moving through a chain. Handlers receive
// it, may mutate payload and metadata, and emit it (or a derived message) on
// an output handle.
type Message struct {
	ID      types.ID       `json:"id"`
	Payload map[string]any `json:"payload"`
	Meta    Metadata       `json:"metadata"`
}

// New builds a message for the given tenant and subject type with a fresh ID
// and the current receive timestamp.
func New(tenantID, subjectType, originator string, payload map[string]any) *Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Message{
		ID:      types.NewID(),
		Payload: payload,
		Meta: Metadata{
			TenantID:    tenantID,
			SubjectType: subjectType,
			Originator:  originator,
			ReceivedAt:  time.Now().UTC(),
			Values:      map[string]any{},
		},
	}
}

// Clone returns an independent copy of the message. Payload and metadata
// values are copied one level deep, which is enough to isolate branches that
// replace or add keys. Handlers that mutate nested structures in place must
// copy them first.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:      m.ID,
		Payload: copyMap(m.Payload),
		Meta:    m.Meta,
	}
	clone.Meta.Values = copyMap(m.Meta.Values)
	return clone
}

// SetValue records an enrichment value on the message metadata.
func (m *Message) SetValue(key string, value any) {
	if m.Meta.Values == nil {
		m.Meta.Values = map[string]any{}
	}
	m.Meta.Values[key] = value
}

// Value looks up an enrichment value by key.
func (m *Message) Value(key string) (any, bool) {
	v, ok := m.Meta.Values[key]
	return v, ok
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// NodeResult records the outcome of one node execution inside a trace.
type NodeResult struct {
	NodeID     string    `json:"nodeId"`
	NodeType   string    `json:"nodeType"`
	Handle     string    `json:"handle"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the node execution took.
func (r NodeResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Trace is the ordered list of node results produced by one execution.
type Trace []NodeResult

// Visited reports whether the trace contains an entry for the given node.
func (t Trace) Visited(nodeID string) bool {
	return t.Count(nodeID) > 0
}

// Count returns how many times the given node appears in the trace.
func (t Trace) Count(nodeID string) int {
	n := 0
	for _, r := range t {
		if r.NodeID == nodeID {
			n++
		}
	}
	return n
}
