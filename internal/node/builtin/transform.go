package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// ComponentValuesKey is the metadata key apply_mapping stores per-component
// values under for route_to_components and save_to_digital_twin.
const ComponentValuesKey = "componentValues"

// mathNode applies one arithmetic operation to a numeric payload field.
type mathNode struct {
	operation   string
	field       string
	operand     float64
	targetField string
}

func newMathNode(config map[string]any) (node.Handler, error) {
	field := cfgString(config, "field", "")
	if field == "" {
		return nil, fmt.Errorf("field is required")
	}
	return &mathNode{
		operation:   cfgString(config, "operation", "add"),
		field:       field,
		operand:     cfgFloat(config, "operand", 0),
		targetField: cfgString(config, "targetField", field),
	}, nil
}

func (h *mathNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	raw, ok := lookupPath(msg.Payload, h.field)
	if !ok {
		msg.SetValue("mathError", fmt.Sprintf("field %q not present", h.field))
		return node.Failure(msg), nil
	}
	v, ok := toNumber(raw)
	if !ok {
		msg.SetValue("mathError", fmt.Sprintf("field %q is not numeric", h.field))
		return node.Failure(msg), nil
	}

	var out float64
	switch h.operation {
	case "add":
		out = v + h.operand
	case "subtract":
		out = v - h.operand
	case "multiply":
		out = v * h.operand
	case "divide":
		if h.operand == 0 {
			msg.SetValue("mathError", "division by zero")
			return node.Failure(msg), nil
		}
		out = v / h.operand
	case "min":
		out = math.Min(v, h.operand)
	case "max":
		out = math.Max(v, h.operand)
	case "abs":
		out = math.Abs(v)
	case "round":
		out = math.Round(v)
	default:
		return nil, fmt.Errorf("unknown operation %q", h.operation)
	}

	msg.Payload[h.targetField] = out
	return node.Success(msg), nil
}

// renameKeys renames top-level payload keys. Keys without a mapping pass
// through untouched; a mapping whose source key is absent is skipped.
type renameKeys struct {
	mappings map[string]string
}

func newRenameKeys(config map[string]any) (node.Handler, error) {
	raw := cfgMap(config, "mappings")
	if len(raw) == 0 {
		return nil, fmt.Errorf("mappings is required")
	}
	mappings := make(map[string]string, len(raw))
	for from, to := range raw {
		s, ok := to.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("mapping for %q must be a non-empty string", from)
		}
		mappings[from] = s
	}
	return &renameKeys{mappings: mappings}, nil
}

func (h *renameKeys) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	for from, to := range h.mappings {
		if v, ok := msg.Payload[from]; ok {
			delete(msg.Payload, from)
			msg.Payload[to] = v
		}
	}
	return node.Success(msg), nil
}

// applyMapping translates raw telemetry fields through the resolved
// binding's field mapping: rename, linear conversion, and component
// grouping. The translated payload replaces the raw one; per-component
// values land in metadata for downstream routing.
type applyMapping struct {
	keepUnmapped bool
}

func newApplyMapping(config map[string]any) (node.Handler, error) {
	return &applyMapping{
		keepUnmapped: cfgBool(config, "keepUnmapped", false),
	}, nil
}

func (h *applyMapping) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	binding, ok := bindingFrom(msg)
	if !ok {
		msg.SetValue("mappingError", "no resolved binding on message")
		return node.Failure(msg), nil
	}
	if len(binding.Mapping) == 0 {
		msg.SetValue("mappingError", fmt.Sprintf("binding %s has no field mapping", binding.ID))
		return node.Failure(msg), nil
	}

	mapped := map[string]any{}
	components := map[string]map[string]any{}
	for _, fm := range binding.Mapping {
		raw, ok := lookupPath(msg.Payload, fm.Source)
		if !ok {
			continue
		}

		value := raw
		if n, isNum := toNumber(raw); isNum {
			scale := fm.Scale
			if scale == 0 {
				scale = 1
			}
			value = n*scale + fm.Offset
		}
		mapped[fm.Target] = value

		// Targets without a component land on the asset root, keyed by
		// the empty component name the twin writer resolves to the asset
		// itself. Dropping them would lose telemetry whenever any other
		// field names a component.
		if components[fm.Component] == nil {
			components[fm.Component] = map[string]any{}
		}
		components[fm.Component][fm.Target] = value
	}

	if h.keepUnmapped {
		for k, v := range msg.Payload {
			if _, ok := mapped[k]; !ok {
				mapped[k] = v
			}
		}
	}

	msg.Payload = mapped
	if len(components) > 0 {
		msg.SetValue(ComponentValuesKey, components)
	}
	return node.Success(msg), nil
}

// routeToComponents regroups the mapped payload by asset component so the
// twin writer can update each component's state separately. Without
// component groupings everything belongs to the asset root.
type routeToComponents struct{}

func newRouteToComponents(config map[string]any) (node.Handler, error) {
	return &routeToComponents{}, nil
}

func (h *routeToComponents) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if _, ok := bindingFrom(msg); !ok {
		msg.SetValue("routingError", "no resolved binding on message")
		return node.Failure(msg), nil
	}

	v, ok := msg.Value(ComponentValuesKey)
	components, isMap := v.(map[string]map[string]any)
	if !ok || !isMap || len(components) == 0 {
		// everything routes to the asset root component
		msg.SetValue(ComponentValuesKey, map[string]map[string]any{"": msg.Payload})
	}
	return node.Success(msg), nil
}
