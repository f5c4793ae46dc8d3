package builtin

import (
	"context"
	"fmt"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// thresholdFilter compares one numeric payload field against a configured
// bound and routes true/false. A missing or non-numeric field is a modeled
// failure, not a fault: broken telemetry is routine.
type thresholdFilter struct {
	field    string
	operator string
	value    float64
}

func newThresholdFilter(config map[string]any) (node.Handler, error) {
	return &thresholdFilter{
		field:    cfgString(config, "field", ""),
		operator: cfgString(config, "operator", "gt"),
		value:    cfgFloat(config, "value", 0),
	}, nil
}

func (h *thresholdFilter) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	raw, ok := lookupPath(msg.Payload, h.field)
	if !ok {
		msg.SetValue("filterError", fmt.Sprintf("field %q not present", h.field))
		return node.Failure(msg), nil
	}
	v, ok := toNumber(raw)
	if !ok {
		msg.SetValue("filterError", fmt.Sprintf("field %q is not numeric", h.field))
		return node.Failure(msg), nil
	}

	var pass bool
	switch h.operator {
	case "gt":
		pass = v > h.value
	case "gte":
		pass = v >= h.value
	case "lt":
		pass = v < h.value
	case "lte":
		pass = v <= h.value
	case "eq":
		pass = v == h.value
	case "neq":
		pass = v != h.value
	default:
		return nil, fmt.Errorf("unknown operator %q", h.operator)
	}

	if pass {
		return node.Emit(node.HandleTrue, msg), nil
	}
	return node.Emit(node.HandleFalse, msg), nil
}

// checkFieldsPresence routes true only when every configured field exists in
// the payload. Missing fields are listed in metadata for diagnostics.
type checkFieldsPresence struct {
	fields []string
}

func newCheckFieldsPresence(config map[string]any) (node.Handler, error) {
	fields := cfgStrings(config, "fields")
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one field is required")
	}
	return &checkFieldsPresence{fields: fields}, nil
}

func (h *checkFieldsPresence) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	var missing []string
	for _, f := range h.fields {
		if _, ok := lookupPath(msg.Payload, f); !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		msg.SetValue("missingFields", missing)
		return node.Emit(node.HandleFalse, msg), nil
	}
	return node.Emit(node.HandleTrue, msg), nil
}

// messageTypeSwitch routes on the message type. The handle set is dynamic:
// whatever types the author wires edges for, with "other" as the catch-all
// for unmatched types. An unwired "other" drops the branch silently.
type messageTypeSwitch struct {
	wired map[string]bool
}

func newMessageTypeSwitch(config map[string]any) (node.Handler, error) {
	return &messageTypeSwitch{}, nil
}

func (h *messageTypeSwitch) SetWiredHandles(handles []string) {
	h.wired = make(map[string]bool, len(handles))
	for _, handle := range handles {
		h.wired[handle] = true
	}
}

func (h *messageTypeSwitch) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	mt := msg.Meta.MessageType
	if mt == "" || !h.wired[mt] {
		return node.Emit(node.HandleOther, msg), nil
	}
	return node.Emit(mt, msg), nil
}
