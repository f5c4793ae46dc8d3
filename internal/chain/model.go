// Package chain holds the tenant-scoped rule chain model: the static graph of
// typed nodes and handle-labeled edges that the engine compiles and executes,
// plus parsing, validation, and the seeded root chain.
package chain

import (
	"fmt"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Status is the lifecycle state of a chain. Only ACTIVE chains participate in
// message resolution.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// ParseStatus maps a wire status string to a Status. Legacy states from
// older exports (INACTIVE, ERROR, DEBUG) collapse to DISABLED.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "", string(StatusDraft):
		return StatusDraft, nil
	case string(StatusActive):
		return StatusActive, nil
	case string(StatusDisabled), "INACTIVE", "ERROR", "DEBUG":
		return StatusDisabled, nil
	default:
		return "", fmt.Errorf("unknown chain status %q", s)
	}
}

// Scope selects which subject types a chain applies to. An empty SubjectTypes
// list means the chain covers every subject type of the tenant.
type Scope struct {
	SubjectTypes []string `json:"subjectTypes,omitempty" yaml:"subjectTypes,omitempty"`
}

// All reports whether the scope covers every subject type.
func (s Scope) All() bool {
	return len(s.SubjectTypes) == 0
}

// Covers reports whether the scope includes the given subject type.
func (s Scope) Covers(subjectType string) bool {
	if s.All() {
		return true
	}
	for _, t := range s.SubjectTypes {
		if t == subjectType {
			return true
		}
	}
	return false
}

// Overlaps reports whether two scopes can both match some subject type. Used
// to enforce single-active-chain uniqueness at activation.
func (s Scope) Overlaps(other Scope) bool {
	if s.All() || other.All() {
		return true
	}
	for _, t := range s.SubjectTypes {
		if other.Covers(t) {
			return true
		}
	}
	return false
}

// ExecutionPolicy carries per-chain runtime limits and error handling knobs.
type ExecutionPolicy struct {
	// TimeoutMs bounds one whole execution; zero means the engine default.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`

	// MaxExecutionsPerMinute is a fixed-window admission cap; zero disables it.
	MaxExecutionsPerMinute int `json:"maxExecutionsPerMinute,omitempty" yaml:"maxExecutionsPerMinute,omitempty"`

	// DebounceMs suppresses messages with a repeated dedupe key inside the
	// window; zero disables debouncing.
	DebounceMs int `json:"debounceMs,omitempty" yaml:"debounceMs,omitempty"`

	// ErrorHandlerNode receives messages whose node faulted with no failure
	// edge wired. Empty means no fallback.
	ErrorHandlerNode string `json:"errorHandlerNode,omitempty" yaml:"errorHandlerNode,omitempty"`

	// ExecuteOnStartup runs the chain once with a synthetic message when the
	// engine boots.
	ExecuteOnStartup bool `json:"executeOnStartup,omitempty" yaml:"executeOnStartup,omitempty"`
}

// Timeout returns the configured chain timeout as a duration, or zero when
// the engine default applies.
func (p ExecutionPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Debounce returns the debounce window as a duration.
func (p ExecutionPolicy) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// Node is one typed step in a chain. Config is the raw block validated
// against the node type's schema at compile time.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge connects a source node's named output handle to a target node.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
	Target       string `json:"target" yaml:"target"`
}

// Chain is the static rule graph for one tenant. Node order is preserved
// from the definition; it breaks priority ties nowhere but keeps traversal
// of entry points deterministic.
type Chain struct {
	ID        types.ID        `json:"id"`
	TenantID  string          `json:"tenantId"`
	Name      string          `json:"name"`
	Scope     Scope           `json:"scope"`
	Status    Status          `json:"status"`
	Priority  int             `json:"priority"`
	Policy    ExecutionPolicy `json:"config"`
	Nodes     []*Node         `json:"nodes"`
	Edges     []Edge          `json:"edges"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	byID map[string]*Node
}

// Node returns the node with the given ID, or nil.
func (c *Chain) Node(id string) *Node {
	if c.byID == nil {
		c.index()
	}
	return c.byID[id]
}

func (c *Chain) index() {
	c.byID = make(map[string]*Node, len(c.Nodes))
	for _, n := range c.Nodes {
		c.byID[n.ID] = n
	}
}

// EntryPoints returns nodes with no incoming edges, in definition order.
// Note this is a pure graph property; execution starts only from
// source-typed nodes, which the engine selects by declared input count.
func (c *Chain) EntryPoints() []*Node {
	hasIncoming := make(map[string]bool, len(c.Nodes))
	for _, e := range c.Edges {
		hasIncoming[e.Target] = true
	}

	var entries []*Node
	for _, n := range c.Nodes {
		if !hasIncoming[n.ID] {
			entries = append(entries, n)
		}
	}
	return entries
}

// IncomingCount returns the number of edges targeting the given node.
func (c *Chain) IncomingCount(nodeID string) int {
	n := 0
	for _, e := range c.Edges {
		if e.Target == nodeID {
			n++
		}
	}
	return n
}

// OutgoingEdges returns edges leaving nodeID, optionally filtered by handle.
// An empty handle returns all outgoing edges.
func (c *Chain) OutgoingEdges(nodeID, handle string) []Edge {
	var out []Edge
	for _, e := range c.Edges {
		if e.Source != nodeID {
			continue
		}
		if handle != "" && e.SourceHandle != handle {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clone returns a deep copy of the chain. Stores hand out clones so callers
// cannot mutate shared state.
func (c *Chain) Clone() *Chain {
	clone := *c
	clone.byID = nil
	clone.Nodes = make([]*Node, len(c.Nodes))
	for i, n := range c.Nodes {
		nc := *n
		if n.Config != nil {
			nc.Config = make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				nc.Config[k] = v
			}
		}
		clone.Nodes[i] = &nc
	}
	clone.Edges = append([]Edge(nil), c.Edges...)
	clone.Scope.SubjectTypes = append([]string(nil), c.Scope.SubjectTypes...)
	return &clone
}
