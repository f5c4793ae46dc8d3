package chain

import (
	"fmt"
	"strings"

	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/schema"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Issue is one finding from graph validation. Errors block activation;
// warnings do not.
type Issue struct {
	Code    types.ErrorCode `json:"code"`
	NodeID  string          `json:"nodeId,omitempty"`
	Message string          `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", i.Code, i.NodeID, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// Result aggregates every issue found in one validation pass. All checks run
// even after the first error so authors see the full picture at once.
type Result struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Valid reports whether the chain may be activated.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err converts a failed result into a structured error, nil when valid.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = issue.String()
	}
	return types.NewError(types.CHAIN_VALIDATION_FAILED, strings.Join(msgs, "; "))
}

func (r *Result) addError(code types.ErrorCode, nodeID, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(code types.ErrorCode, nodeID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// Validator checks a chain's graph against the node type registry: node
// types exist, configs match their schemas, edges reference real nodes and
// declared handles, the graph is acyclic, and every node is reachable from
// an entry point.
type Validator struct {
	registry *node.Registry
}

// NewValidator creates a validator backed by the given registry.
func NewValidator(registry *node.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs every check and returns the aggregated result.
func (v *Validator) Validate(c *Chain) *Result {
	res := &Result{}
	if c == nil {
		res.addError(types.CHAIN_VALIDATION_FAILED, "", "chain is nil")
		return res
	}
	if len(c.Nodes) == 0 {
		res.addError(types.CHAIN_VALIDATION_FAILED, "", "chain has no nodes")
		return res
	}

	defs := v.checkNodes(c, res)
	v.checkEdges(c, defs, res)
	v.checkErrorHandler(c, res)
	v.checkAcyclic(c, res)
	v.checkReachability(c, defs, res)
	return res
}

// checkNodes resolves every node type and validates its config block.
// Returns the definitions found so edge checks can consult handle sets.
func (v *Validator) checkNodes(c *Chain, res *Result) map[string]node.Definition {
	defs := make(map[string]node.Definition, len(c.Nodes))
	seen := make(map[string]bool, len(c.Nodes))

	for _, n := range c.Nodes {
		if seen[n.ID] {
			res.addError(types.CHAIN_VALIDATION_FAILED, n.ID, "duplicate node id")
			continue
		}
		seen[n.ID] = true

		def, err := v.registry.Definition(n.Type)
		if err != nil {
			res.addError(types.NODE_TYPE_UNKNOWN, n.ID, "unknown node type %q", n.Type)
			continue
		}
		defs[n.ID] = def

		for _, serr := range schema.NewValidator(&def.ConfigSchema).ValidateMap(n.Config) {
			res.addError(types.NODE_CONFIG_INVALID, n.ID, "%s", serr.Error())
		}
	}
	return defs
}

func (v *Validator) checkEdges(c *Chain, defs map[string]node.Definition, res *Result) {
	for _, e := range c.Edges {
		if c.Node(e.Source) == nil {
			res.addError(types.CHAIN_VALIDATION_FAILED, "", "edge %s references unknown source %q", e.ID, e.Source)
			continue
		}
		if c.Node(e.Target) == nil {
			res.addError(types.CHAIN_VALIDATION_FAILED, "", "edge %s references unknown target %q", e.ID, e.Target)
			continue
		}
		if e.Source == e.Target {
			res.addError(types.CHAIN_VALIDATION_FAILED, e.Source, "self-loop edge %s", e.ID)
		}

		def, ok := defs[e.Source]
		if !ok {
			continue // source type unknown, already reported
		}
		if !def.DynamicOutputs && !def.HasHandle(e.SourceHandle) {
			res.addError(types.CHAIN_VALIDATION_FAILED, e.Source,
				"edge %s uses handle %q, node type %q declares [%s]",
				e.ID, e.SourceHandle, def.Type, strings.Join(def.OutputHandles, ", "))
		}

		tdef, ok := defs[e.Target]
		if ok && tdef.Inputs == 0 {
			res.addError(types.CHAIN_VALIDATION_FAILED, e.Target,
				"edge %s targets node type %q which accepts no inputs", e.ID, tdef.Type)
		}
	}
}

func (v *Validator) checkErrorHandler(c *Chain, res *Result) {
	if h := c.Policy.ErrorHandlerNode; h != "" && c.Node(h) == nil {
		res.addError(types.CHAIN_VALIDATION_FAILED, h, "error handler node does not exist")
	}
}

// checkAcyclic runs a colored depth-first search over every node. Hitting a
// node already on the active stack means a cycle; the stack slice from that
// node onward is the cycle path reported to the author.
func (v *Validator) checkAcyclic(c *Chain, res *Result) {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int, len(c.Nodes))
	var stack []string

	adjacency := make(map[string][]string, len(c.Nodes))
	for _, e := range c.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				// reconstruct the cycle from the stack
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), next)
				res.addError(types.CHAIN_VALIDATION_FAILED, next,
					"cycle detected: %s", strings.Join(path, " -> "))
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, n := range c.Nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return
			}
		}
	}
}

// checkReachability warns about nodes no source node can reach. Only
// source-typed nodes (zero declared inputs) count as entry points; a
// non-source node that happens to have no incoming edges is a dead
// sub-graph, not an entry. Unreachable nodes are legal (authors park
// work-in-progress branches) but worth surfacing.
func (v *Validator) checkReachability(c *Chain, defs map[string]node.Definition, res *Result) {
	var sources []string
	for _, n := range c.Nodes {
		if def, ok := defs[n.ID]; ok && def.Inputs == 0 {
			sources = append(sources, n.ID)
		}
	}
	if len(sources) == 0 {
		res.addError(types.CHAIN_VALIDATION_FAILED, "", "chain has no entry points (no source node with zero inputs)")
		return
	}

	adjacency := make(map[string][]string, len(c.Nodes))
	hasIncoming := make(map[string]bool, len(c.Nodes))
	for _, e := range c.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		hasIncoming[e.Target] = true
	}

	reached := make(map[string]bool, len(c.Nodes))
	queue := make([]string, 0, len(sources))
	for _, id := range sources {
		reached[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, n := range c.Nodes {
		if reached[n.ID] {
			continue
		}
		if !hasIncoming[n.ID] {
			res.addWarning(types.CHAIN_VALIDATION_FAILED, n.ID, "node has no incoming edges and is not a source type; it will never execute")
			continue
		}
		res.addWarning(types.CHAIN_VALIDATION_FAILED, n.ID, "node is unreachable from any source node")
	}
}
