package builtin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// ruleChainNode hands the message to another chain and resumes with that
// chain's final message. Invocation errors are faults; the inner chain's own
// failure routing already ran by the time we see a result.
type ruleChainNode struct {
	services Services
	chainID  string
}

func newRuleChainNode(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		chainID := cfgString(config, "chainId", "")
		if chainID == "" {
			return nil, fmt.Errorf("chainId is required")
		}
		if _, err := types.ParseID(chainID); err != nil {
			return nil, fmt.Errorf("chainId: %w", err)
		}
		return &ruleChainNode{services: services, chainID: chainID}, nil
	}
}

func (h *ruleChainNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Chains == nil {
		return nil, fmt.Errorf("no chain invoker configured")
	}

	out, err := h.services.Chains.Invoke(ctx, h.chainID, msg)
	if err != nil {
		return nil, fmt.Errorf("invoke chain %s: %w", h.chainID, err)
	}
	if out == nil {
		out = msg
	}
	return node.Success(out), nil
}

// Merge strategies.
const (
	MergeFirst  = "first"  // emit on the first arrival, ignore the rest
	MergeAll    = "all"    // wait for expect arrivals, union the payloads
	MergeLatest = "latest" // wait for expect arrivals, emit the last one
)

// mergeBufferTTL bounds how long a partial merge buffer survives. Executions
// that end without completing the merge would otherwise leak buffers.
const mergeBufferTTL = 5 * time.Minute

type mergeState struct {
	firstDone bool
	messages  []*message.Message
	touched   time.Time
}

// mergeNode is the only sanctioned fan-in point. Branch arrivals for the
// same execution buffer here until the strategy releases one message. A
// handler instance is shared across executions of its compiled chain, so
// state is keyed by execution ID.
type mergeNode struct {
	strategy string
	expect   int

	mu     sync.Mutex
	states map[types.ID]*mergeState
	now    func() time.Time
}

func newMergeNode(config map[string]any) (node.Handler, error) {
	expect := cfgInt(config, "expect", 0)
	if expect < 0 {
		return nil, fmt.Errorf("expect must not be negative")
	}
	return &mergeNode{
		strategy: cfgString(config, "strategy", MergeAll),
		expect:   expect,
		states:   make(map[types.ID]*mergeState),
		now:      time.Now,
	}, nil
}

func (h *mergeNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	execID := msg.Meta.ExecutionID
	if execID.IsZero() {
		// nothing to join on, pass straight through
		return node.Success(msg), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked()

	st := h.states[execID]
	if st == nil {
		st = &mergeState{}
		h.states[execID] = st
	}
	st.touched = h.now()

	if h.strategy == MergeFirst {
		if st.firstDone {
			return &node.Result{}, nil // consumed, already emitted
		}
		st.firstDone = true
		return node.Success(msg), nil
	}

	st.messages = append(st.messages, msg)
	if h.expect == 0 || len(st.messages) < h.expect {
		return &node.Result{}, nil // hold until the join completes
	}

	buffered := st.messages
	delete(h.states, execID)

	switch h.strategy {
	case MergeLatest:
		return node.Success(buffered[len(buffered)-1]), nil
	default: // all
		merged := buffered[0].Clone()
		for _, m := range buffered[1:] {
			for k, v := range m.Payload {
				merged.Payload[k] = v
			}
			for k, v := range m.Meta.Values {
				merged.SetValue(k, v)
			}
		}
		return node.Success(merged), nil
	}
}

func (h *mergeNode) sweepLocked() {
	now := h.now()
	for id, st := range h.states {
		if now.Sub(st.touched) > mergeBufferTTL {
			delete(h.states, id)
		}
	}
}

// checkpointNode stamps a named marker on the message and logs it at debug.
// Useful while authoring to see how far a message travels.
type checkpointNode struct {
	services Services
	name     string
}

func newCheckpointNode(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		name := cfgString(config, "name", "")
		if name == "" {
			return nil, fmt.Errorf("name is required")
		}
		return &checkpointNode{services: services, name: name}, nil
	}
}

func (h *checkpointNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	msg.SetValue("checkpoint:"+h.name, time.Now().UTC().Format(time.RFC3339Nano))
	h.services.logger().Debug("checkpoint reached",
		"checkpoint", h.name,
		"messageId", msg.ID.String(),
		"tenant", msg.Meta.TenantID,
	)
	return node.Success(msg), nil
}
