package chain

import (
	"fmt"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Builder assembles a chain programmatically. Errors accumulate and surface
// once at Build so call sites stay fluent.
type Builder struct {
	chain *Chain
	errs  []error
}

// NewBuilder starts a chain for the given tenant.
func NewBuilder(tenantID, name string) *Builder {
	return &Builder{
		chain: &Chain{
			ID:        types.NewID(),
			TenantID:  tenantID,
			Name:      name,
			Status:    StatusDraft,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// WithID overrides the generated chain ID, for seeds with stable IDs.
func (b *Builder) WithID(id types.ID) *Builder {
	if err := id.Validate(); err != nil {
		b.errs = append(b.errs, fmt.Errorf("chain id: %w", err))
		return b
	}
	b.chain.ID = id
	return b
}

// WithScope restricts the chain to the given subject types. No call, or an
// empty call, leaves the chain covering all subject types.
func (b *Builder) WithScope(subjectTypes ...string) *Builder {
	b.chain.Scope = Scope{SubjectTypes: subjectTypes}
	return b
}

// WithPriority sets the resolution priority; higher wins.
func (b *Builder) WithPriority(priority int) *Builder {
	b.chain.Priority = priority
	return b
}

// WithStatus sets the lifecycle status.
func (b *Builder) WithStatus(status Status) *Builder {
	b.chain.Status = status
	return b
}

// WithPolicy sets the execution policy.
func (b *Builder) WithPolicy(policy ExecutionPolicy) *Builder {
	b.chain.Policy = policy
	return b
}

// AddNode appends a node.
func (b *Builder) AddNode(id, nodeType string, config map[string]any) *Builder {
	if id == "" || nodeType == "" {
		b.errs = append(b.errs, fmt.Errorf("node requires id and type (got id=%q type=%q)", id, nodeType))
		return b
	}
	for _, n := range b.chain.Nodes {
		if n.ID == id {
			b.errs = append(b.errs, fmt.Errorf("duplicate node id %q", id))
			return b
		}
	}
	b.chain.Nodes = append(b.chain.Nodes, &Node{ID: id, Type: nodeType, Config: config})
	return b
}

// Connect wires source's handle to target.
func (b *Builder) Connect(source, handle, target string) *Builder {
	if source == "" || target == "" {
		b.errs = append(b.errs, fmt.Errorf("edge requires source and target"))
		return b
	}
	if handle == "" {
		handle = "success"
	}
	b.chain.Edges = append(b.chain.Edges, Edge{
		ID:           fmt.Sprintf("%s:%s->%s", source, handle, target),
		Source:       source,
		SourceHandle: handle,
		Target:       target,
	})
	return b
}

// OnSuccess wires source's success handle to target.
func (b *Builder) OnSuccess(source, target string) *Builder {
	return b.Connect(source, "success", target)
}

// OnFailure wires source's failure handle to target.
func (b *Builder) OnFailure(source, target string) *Builder {
	return b.Connect(source, "failure", target)
}

// Build returns the assembled chain or the first accumulated error. Edge
// endpoints are checked here; full graph validation stays with Validator.
func (b *Builder) Build() (*Chain, error) {
	if len(b.errs) > 0 {
		return nil, types.WrapError(types.CHAIN_PARSE_FAILED, "build chain", b.errs[0])
	}
	if len(b.chain.Nodes) == 0 {
		return nil, types.NewError(types.CHAIN_PARSE_FAILED, "chain has no nodes")
	}
	for _, e := range b.chain.Edges {
		if b.chain.Node(e.Source) == nil {
			return nil, types.NewError(types.CHAIN_PARSE_FAILED,
				fmt.Sprintf("edge %s references unknown source %q", e.ID, e.Source))
		}
		if b.chain.Node(e.Target) == nil {
			return nil, types.NewError(types.CHAIN_PARSE_FAILED,
				fmt.Sprintf("edge %s references unknown target %q", e.ID, e.Target))
		}
	}
	return b.chain, nil
}
