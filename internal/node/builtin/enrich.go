package builtin

import (
	"context"
	"fmt"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// BindingValueKey is the metadata key resolve_binding stores its result
// under for downstream mapping and persistence nodes.
const BindingValueKey = "binding"

// resolveBinding looks up the data source binding for the message
// originator. With required=true a missing binding is a failure; otherwise
// the message passes through unenriched.
type resolveBinding struct {
	services Services
	required bool
}

func newResolveBinding(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &resolveBinding{
			services: services,
			required: cfgBool(config, "required", true),
		}, nil
	}
}

func (h *resolveBinding) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Bindings == nil {
		return nil, fmt.Errorf("no binding resolver configured")
	}

	binding, err := h.services.Bindings.Resolve(ctx, msg.Meta.TenantID, msg.Meta.Originator)
	if err != nil {
		return nil, fmt.Errorf("resolve binding for %s: %w", msg.Meta.Originator, err)
	}
	if binding == nil {
		if h.required {
			msg.SetValue("bindingError", fmt.Sprintf("no binding for originator %q", msg.Meta.Originator))
			return node.Failure(msg), nil
		}
		return node.Success(msg), nil
	}

	msg.SetValue(BindingValueKey, binding)
	return node.Success(msg), nil
}

// originatorAttributes copies server-side attributes of the originator into
// message metadata, optionally key-filtered and prefixed.
type originatorAttributes struct {
	services Services
	keys     []string
	prefix   string
}

func newOriginatorAttributes(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &originatorAttributes{
			services: services,
			keys:     cfgStrings(config, "keys"),
			prefix:   cfgString(config, "prefix", ""),
		}, nil
	}
}

func (h *originatorAttributes) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Attributes == nil {
		return nil, fmt.Errorf("no attribute store configured")
	}

	attrs, err := h.services.Attributes.OriginatorAttributes(ctx, msg.Meta.TenantID, msg.Meta.Originator, h.keys)
	if err != nil {
		return nil, fmt.Errorf("fetch originator attributes: %w", err)
	}
	for k, v := range attrs {
		msg.SetValue(h.prefix+k, v)
	}
	return node.Success(msg), nil
}

// tenantAttributes copies tenant-level attributes into message metadata.
type tenantAttributes struct {
	services Services
	keys     []string
	prefix   string
}

func newTenantAttributes(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &tenantAttributes{
			services: services,
			keys:     cfgStrings(config, "keys"),
			prefix:   cfgString(config, "prefix", ""),
		}, nil
	}
}

func (h *tenantAttributes) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Attributes == nil {
		return nil, fmt.Errorf("no attribute store configured")
	}

	attrs, err := h.services.Attributes.TenantAttributes(ctx, msg.Meta.TenantID, h.keys)
	if err != nil {
		return nil, fmt.Errorf("fetch tenant attributes: %w", err)
	}
	for k, v := range attrs {
		msg.SetValue(h.prefix+k, v)
	}
	return node.Success(msg), nil
}

// bindingFrom reads the binding a resolve_binding node stored earlier.
func bindingFrom(msg *message.Message) (*Binding, bool) {
	v, ok := msg.Value(BindingValueKey)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Binding)
	return b, ok
}
