// Package node defines the node type contract for the rule engine: the
// handler interface every node implements, the metadata that describes a node
// type to validators and authoring tools, and the registry that maps type
// identifiers to implementations.
package node

import (
	"context"
	"fmt"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/schema"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Well-known output handles. Most nodes route on success/failure; switch-like
// nodes declare their own handle sets.
const (
	HandleSuccess = "success"
	HandleFailure = "failure"
	HandleTrue    = "true"
	HandleFalse   = "false"
	HandleOther   = "other"
	HandleTimeout = "timeout"
)

// Category groups node types by role. The dispatcher derives per-node
// execution deadlines from the category.
type Category string

const (
	CategoryInput     Category = "input"
	CategoryFilter    Category = "filter"
	CategoryEnrich    Category = "enrichment"
	CategoryTransform Category = "transformation"
	CategoryAction    Category = "action"
	CategoryExternal  Category = "external"
	CategoryFlow      Category = "flow"
)

// Result is what a handler emits: the message to forward and the output
// handle it leaves on. A nil Message with a non-empty handle forwards the
// input message unchanged. An empty Handle means the node consumed the
// message without emitting (merge nodes buffering a join); the branch ends
// there without any drop event.
type Result struct {
	Handle  string
	Message *message.Message
}

// Success emits msg on the success handle.
func Success(msg *message.Message) *Result {
	return &Result{Handle: HandleSuccess, Message: msg}
}

// Failure emits msg on the failure handle. This is a modeled outcome, not a
// fault: downstream edges labeled "failure" receive the message.
func Failure(msg *message.Message) *Result {
	return &Result{Handle: HandleFailure, Message: msg}
}

// Emit emits msg on an arbitrary named handle.
func Emit(handle string, msg *message.Message) *Result {
	return &Result{Handle: handle, Message: msg}
}

// Handler executes one node's logic against a message. Returning an error
// signals a fault (bug, panic equivalent, upstream outage); the dispatcher
// converts faults to failure-handle routing. Handlers must honor ctx
// cancellation on anything blocking.
type Handler interface {
	Execute(ctx context.Context, msg *message.Message) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *message.Message) (*Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, msg *message.Message) (*Result, error) {
	return f(ctx, msg)
}

// HandleAware handlers learn at compile time which of their output handles
// actually have edges wired. Switch nodes use this to divert unmatched
// values to a catch-all handle instead of dropping them.
type HandleAware interface {
	SetWiredHandles(handles []string)
}

// Factory builds a handler instance from a node's validated config block.
// Factories run once per node at chain compile time, so expensive setup
// (expression compilation, regex builds) belongs here, not in Execute.
type Factory func(config map[string]any) (Handler, error)

// Definition describes a node type: its identifier, category, config schema,
// and routing surface. Definitions are published through the node catalog.
type Definition struct {
	Type          string            `json:"type"`
	Category      Category          `json:"category"`
	Label         string            `json:"label"`
	Description   string            `json:"description,omitempty"`
	ConfigSchema  schema.JSONSchema `json:"configSchema"`
	Inputs        int               `json:"inputs"`
	OutputHandles []string          `json:"outputHandles"`

	// DynamicOutputs marks node types whose handle set depends on config
	// (switch nodes). Edge handle validation is relaxed for them.
	DynamicOutputs bool `json:"dynamicOutputs,omitempty"`
}

// HasHandle reports whether the definition declares the given output handle.
func (d Definition) HasHandle(handle string) bool {
	for _, h := range d.OutputHandles {
		if h == handle {
			return true
		}
	}
	return false
}

// UnknownTypeError is returned when a chain references a node type the
// registry does not know. It is distinguished from config validation errors
// so callers can surface a precise diagnostic.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown node type %q", e.Type)
}

// AsEngineError converts the error to the shared structured error form.
func (e *UnknownTypeError) AsEngineError() *types.EngineError {
	return types.WrapError(types.NODE_TYPE_UNKNOWN, "resolve node type", e)
}
