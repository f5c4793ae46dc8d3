package chain

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Definition is the wire form of a chain as produced by the visual editor or
// a YAML/JSON export. Layout-only fields (node positions, edge labels) are
// split off into a Presentation so the executable model stays free of UI
// concerns.
type Definition struct {
	ID       string           `json:"id,omitempty" yaml:"id,omitempty"`
	TenantID string           `json:"tenantId" yaml:"tenantId"`
	Name     string           `json:"name" yaml:"name"`
	Scope    Scope            `json:"scope,omitempty" yaml:"scope,omitempty"`
	Status   string           `json:"status,omitempty" yaml:"status,omitempty"`
	Priority int              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Config   ExecutionPolicy  `json:"config,omitempty" yaml:"config,omitempty"`
	Nodes    []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges    []EdgeDefinition `json:"edges" yaml:"edges"`
}

// NodeDefinition is the wire form of a node, including editor layout.
type NodeDefinition struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Position *Position      `json:"position,omitempty" yaml:"position,omitempty"`
}

// EdgeDefinition is the wire form of an edge. A missing sourceHandle defaults
// to "success". Editor styling fields are tolerated and dropped.
type EdgeDefinition struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	Target       string `json:"target" yaml:"target"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	Animated     bool   `json:"animated,omitempty" yaml:"animated,omitempty"`
}

// Position is an editor canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Presentation carries the layout the engine ignores, keyed by node and edge
// ID, so round-tripping a definition through the store preserves the canvas.
type Presentation struct {
	NodePositions map[string]Position `json:"nodePositions,omitempty"`
	EdgeLabels    map[string]string   `json:"edgeLabels,omitempty"`
}

// Parse decodes a chain definition from JSON or YAML (YAML being a superset,
// one decoder covers both) and converts it to the executable model plus its
// presentation. Structural problems that make the graph meaningless are
// reported here; semantic validation is the Validator's job.
func Parse(data []byte) (*Chain, *Presentation, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, nil, types.WrapError(types.CHAIN_PARSE_FAILED, "decode chain definition", err)
	}
	return def.Compile()
}

// Compile converts the wire definition to the executable model.
func (d *Definition) Compile() (*Chain, *Presentation, error) {
	if d.TenantID == "" {
		return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED, "chain definition missing tenantId")
	}
	if d.Name == "" {
		return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED, "chain definition missing name")
	}
	if len(d.Nodes) == 0 {
		return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED, "chain definition has no nodes")
	}

	status, err := ParseStatus(d.Status)
	if err != nil {
		return nil, nil, types.WrapError(types.CHAIN_PARSE_FAILED, "chain status", err)
	}

	id := types.NewID()
	if d.ID != "" {
		if id, err = types.ParseID(d.ID); err != nil {
			return nil, nil, types.WrapError(types.CHAIN_PARSE_FAILED, "chain id", err)
		}
	}

	c := &Chain{
		ID:        id,
		TenantID:  d.TenantID,
		Name:      d.Name,
		Scope:     d.Scope,
		Status:    status,
		Priority:  d.Priority,
		Policy:    d.Config,
		CreatedAt: time.Now().UTC(),
	}
	pres := &Presentation{
		NodePositions: map[string]Position{},
		EdgeLabels:    map[string]string{},
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, nd := range d.Nodes {
		if nd.ID == "" {
			return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED, "node missing id")
		}
		if nd.Type == "" {
			return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED,
				fmt.Sprintf("node %q missing type", nd.ID))
		}
		if seen[nd.ID] {
			return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED,
				fmt.Sprintf("duplicate node id %q", nd.ID))
		}
		seen[nd.ID] = true

		c.Nodes = append(c.Nodes, &Node{
			ID:     nd.ID,
			Type:   nd.Type,
			Label:  nd.Label,
			Config: nd.Config,
		})
		if nd.Position != nil {
			pres.NodePositions[nd.ID] = *nd.Position
		}
	}

	for i, ed := range d.Edges {
		if ed.Source == "" || ed.Target == "" {
			return nil, nil, types.NewError(types.CHAIN_PARSE_FAILED,
				fmt.Sprintf("edge %d missing source or target", i))
		}
		edgeID := ed.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("%s:%s->%s", ed.Source, ed.SourceHandle, ed.Target)
		}
		handle := ed.SourceHandle
		if handle == "" {
			handle = "success"
		}
		c.Edges = append(c.Edges, Edge{
			ID:           edgeID,
			Source:       ed.Source,
			SourceHandle: handle,
			Target:       ed.Target,
		})
		if ed.Label != "" {
			pres.EdgeLabels[edgeID] = ed.Label
		}
	}

	return c, pres, nil
}

// Export converts an executable chain back into its wire definition,
// reattaching presentation if given.
func Export(c *Chain, pres *Presentation) *Definition {
	d := &Definition{
		ID:       c.ID.String(),
		TenantID: c.TenantID,
		Name:     c.Name,
		Scope:    c.Scope,
		Status:   string(c.Status),
		Priority: c.Priority,
		Config:   c.Policy,
	}
	for _, n := range c.Nodes {
		nd := NodeDefinition{ID: n.ID, Type: n.Type, Label: n.Label, Config: n.Config}
		if pres != nil {
			if pos, ok := pres.NodePositions[n.ID]; ok {
				p := pos
				nd.Position = &p
			}
		}
		d.Nodes = append(d.Nodes, nd)
	}
	for _, e := range c.Edges {
		ed := EdgeDefinition{ID: e.ID, Source: e.Source, SourceHandle: e.SourceHandle, Target: e.Target}
		if pres != nil {
			ed.Label = pres.EdgeLabels[e.ID]
		}
		d.Edges = append(d.Edges, ed)
	}
	return d
}
