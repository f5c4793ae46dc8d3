package builtin

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// Script nodes evaluate tenant-authored CEL expressions. CEL gives us the
// sandbox for free: no I/O, no imports, and a hard evaluation cost ceiling,
// so one tenant's expression cannot stall or escape the engine.

const scriptCostLimit = 1_000_000

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// scriptEnv exposes exactly two variables to expressions: the payload as
// "msg" and the metadata envelope as "metadata".
func scriptEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("msg", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

func compileScript(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	env, err := scriptEnv()
	if err != nil {
		return nil, fmt.Errorf("build script environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	prog, err := env.Program(ast, cel.CostLimit(scriptCostLimit))
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}
	return prog, nil
}

func scriptActivation(msg *message.Message) map[string]any {
	metadata := map[string]any{
		"tenantId":    msg.Meta.TenantID,
		"subjectType": msg.Meta.SubjectType,
		"originator":  msg.Meta.Originator,
		"messageType": msg.Meta.MessageType,
	}
	for k, v := range msg.Meta.Values {
		metadata[k] = v
	}
	return map[string]any{
		"msg":      msg.Payload,
		"metadata": metadata,
	}
}

// scriptFilter evaluates a boolean expression and routes true/false. An
// expression error (wrong result type, cost ceiling, runtime error) is a
// modeled failure so authors can wire a diagnostic branch.
type scriptFilter struct {
	prog cel.Program
}

func newScriptFilter(config map[string]any) (node.Handler, error) {
	prog, err := compileScript(cfgString(config, "expression", ""))
	if err != nil {
		return nil, err
	}
	return &scriptFilter{prog: prog}, nil
}

func (h *scriptFilter) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	out, _, err := h.prog.Eval(scriptActivation(msg))
	if err != nil {
		msg.SetValue("scriptError", err.Error())
		return node.Failure(msg), nil
	}
	pass, ok := out.Value().(bool)
	if !ok {
		msg.SetValue("scriptError", fmt.Sprintf("expression returned %T, want bool", out.Value()))
		return node.Failure(msg), nil
	}
	if pass {
		return node.Emit(node.HandleTrue, msg), nil
	}
	return node.Emit(node.HandleFalse, msg), nil
}

// scriptTransform evaluates an expression that must produce a map, which
// replaces the payload.
type scriptTransform struct {
	prog cel.Program
}

func newScriptTransform(config map[string]any) (node.Handler, error) {
	prog, err := compileScript(cfgString(config, "expression", ""))
	if err != nil {
		return nil, err
	}
	return &scriptTransform{prog: prog}, nil
}

var mapType = reflect.TypeOf(map[string]any{})

func (h *scriptTransform) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	out, _, err := h.prog.Eval(scriptActivation(msg))
	if err != nil {
		msg.SetValue("scriptError", err.Error())
		return node.Failure(msg), nil
	}
	native, err := out.ConvertToNative(mapType)
	if err != nil {
		msg.SetValue("scriptError", fmt.Sprintf("expression must produce a map: %v", err))
		return node.Failure(msg), nil
	}
	msg.Payload = native.(map[string]any)
	return node.Success(msg), nil
}

// formula evaluates a numeric expression and writes the result to a payload
// field, leaving the rest of the payload intact.
type formula struct {
	prog        cel.Program
	targetField string
}

func newFormula(config map[string]any) (node.Handler, error) {
	target := cfgString(config, "targetField", "")
	if target == "" {
		return nil, fmt.Errorf("targetField is required")
	}
	prog, err := compileScript(cfgString(config, "expression", ""))
	if err != nil {
		return nil, err
	}
	return &formula{prog: prog, targetField: target}, nil
}

func (h *formula) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	out, _, err := h.prog.Eval(scriptActivation(msg))
	if err != nil {
		msg.SetValue("scriptError", err.Error())
		return node.Failure(msg), nil
	}

	var result float64
	switch v := out.Value().(type) {
	case float64:
		result = v
	case int64:
		result = float64(v)
	case uint64:
		result = float64(v)
	default:
		msg.SetValue("scriptError", fmt.Sprintf("expression returned %T, want a number", out.Value()))
		return node.Failure(msg), nil
	}

	msg.Payload[h.targetField] = result
	return node.Success(msg), nil
}
