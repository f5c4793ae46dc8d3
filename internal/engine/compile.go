package engine

import (
	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// compiledChain is an executable form of a chain: handler instances built
// from node configs and an edge index keyed by (node, handle).
type compiledChain struct {
	chain    *chain.Chain
	handlers map[string]node.Handler
	defs     map[string]node.Definition
	// edges[nodeID][handle] lists target node IDs in definition order.
	edges   map[string]map[string][]string
	entries []string
}

func (cc *compiledChain) targets(nodeID, handle string) []string {
	byHandle, ok := cc.edges[nodeID]
	if !ok {
		return nil
	}
	return byHandle[handle]
}

// compile validates the graph and instantiates a handler per node. Handlers
// are shared by every execution of the compiled chain, so node state such as
// rate limiter buckets and merge buffers is per chain, not per message.
func (e *Engine) compile(c *chain.Chain) (*compiledChain, error) {
	if err := e.validator.Validate(c).Err(); err != nil {
		return nil, err
	}

	cc := &compiledChain{
		chain:    c,
		handlers: make(map[string]node.Handler, len(c.Nodes)),
		defs:     make(map[string]node.Definition, len(c.Nodes)),
		edges:    make(map[string]map[string][]string, len(c.Nodes)),
	}

	for _, edge := range c.Edges {
		byHandle, ok := cc.edges[edge.Source]
		if !ok {
			byHandle = make(map[string][]string)
			cc.edges[edge.Source] = byHandle
		}
		byHandle[edge.SourceHandle] = append(byHandle[edge.SourceHandle], edge.Target)
	}

	for _, n := range c.Nodes {
		def, err := e.registry.Definition(n.Type)
		if err != nil {
			return nil, err
		}
		cfg := n.Config
		if n.Type == "merge" {
			if incoming := c.IncomingCount(n.ID); incoming > 0 {
				cfg = withMergeExpect(cfg, incoming)
			}
		}
		handler, err := e.registry.Build(n.Type, cfg)
		if err != nil {
			return nil, types.WrapError(types.NODE_CONFIG_INVALID, "build node "+n.ID, err)
		}
		if aware, ok := handler.(node.HandleAware); ok {
			aware.SetWiredHandles(wiredHandles(cc.edges[n.ID]))
		}
		cc.handlers[n.ID] = handler
		cc.defs[n.ID] = def
	}

	// Entry points are source-typed nodes, not merely nodes without
	// incoming edges. A stray filter nobody wired up must never execute.
	for _, n := range c.Nodes {
		if cc.defs[n.ID].Inputs == 0 {
			cc.entries = append(cc.entries, n.ID)
		}
	}
	return cc, nil
}

// withMergeExpect defaults a merge node's expected input count to its
// incoming edge count, leaving an explicit config value alone.
func withMergeExpect(cfg map[string]any, incoming int) map[string]any {
	if v, ok := cfg["expect"]; ok && v != nil {
		return cfg
	}
	out := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	out["expect"] = incoming
	return out
}

func wiredHandles(byHandle map[string][]string) []string {
	handles := make([]string, 0, len(byHandle))
	for h := range byHandle {
		handles = append(handles, h)
	}
	return handles
}
