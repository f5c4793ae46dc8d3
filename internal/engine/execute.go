package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diazhh/petroedge-sub001/internal/events"
	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// DedupeValueKey is the metadata value consulted for the admission dedupe
// identity. The originator is used when the value is absent.
const DedupeValueKey = "dedupeKey"

// Submit routes a message to its chain and starts an asynchronous execution.
// ErrNoMatchingChain means no active chain covers the message; an
// EXECUTION_REJECTED error means admission control suppressed it. Both
// publish an event and neither starts an execution.
func (e *Engine) Submit(ctx context.Context, msg *message.Message) (*Handle, error) {
	if msg == nil {
		return nil, types.NewError(types.EXECUTION_REJECTED, "nil message")
	}
	if msg.Meta.TenantID == "" {
		return nil, types.NewError(types.EXECUTION_REJECTED, "message has no tenant")
	}

	cc, err := e.resolve(ctx, msg.Meta.TenantID, msg.Meta.SubjectType)
	if err != nil {
		if types.IsCode(err, types.NO_MATCHING_CHAIN) {
			e.bus.Publish(events.New(events.TypeMessageDropped).
				WithTenant(msg.Meta.TenantID).
				WithData("subjectType", msg.Meta.SubjectType).
				WithData("messageId", msg.ID.String()))
			e.logger.Debug("message dropped, no matching chain",
				"tenant", msg.Meta.TenantID, "subjectType", msg.Meta.SubjectType)
		}
		return nil, err
	}

	decision := e.admission.Admit(cc.chain.ID, cc.chain.Policy, dedupeKey(msg))
	if !decision.Admitted {
		e.bus.Publish(events.New(events.TypeAdmissionRejected).
			WithTenant(msg.Meta.TenantID).
			WithChain(cc.chain.ID).
			WithData("reason", string(decision.Reason)).
			WithData("messageId", msg.ID.String()))
		return nil, types.NewError(types.EXECUTION_REJECTED,
			fmt.Sprintf("execution rejected: %s", decision.Reason))
	}

	return e.start(ctx, cc, msg), nil
}

// start launches the execution goroutine. The execution outlives the caller's
// request context; only its values carry over.
func (e *Engine) start(ctx context.Context, cc *compiledChain, msg *message.Message) *Handle {
	timeout := cc.chain.Policy.Timeout()
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	execID := types.NewID()
	msg.Meta.ExecutionID = execID
	h := newHandle(execID, cc.chain.ID, cancel)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(execCtx, cc, h, msg)
	}()
	return h
}

func dedupeKey(msg *message.Message) string {
	if v, ok := msg.Value(DedupeValueKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return msg.Meta.Originator
}

type workItem struct {
	nodeID string
	msg    *message.Message
}

// run walks the chain breadth-first from its entry points. Each dequeued item
// executes one node; the result's handle selects the outgoing edges. A fault
// (handler error, panic, or timeout) is converted to the failure handle, then
// to the chain's error handler node, and only abandons the execution when
// neither exists.
func (e *Engine) run(ctx context.Context, cc *compiledChain, h *Handle, msg *message.Message) {
	ctx, span := e.tracer.Start(ctx, "chain.execute", trace.WithAttributes(
		attribute.String("chain.id", cc.chain.ID.String()),
		attribute.String("chain.name", cc.chain.Name),
		attribute.String("tenant.id", cc.chain.TenantID),
		attribute.String("execution.id", h.ExecutionID.String()),
	))
	defer span.End()

	queue := make([]workItem, 0, len(cc.entries))
	for i, entry := range cc.entries {
		in := msg
		if i > 0 {
			in = msg.Clone()
		}
		queue = append(queue, workItem{nodeID: entry, msg: in})
	}

	var abandonErr error
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			e.finish(cc, h, outcomeForCtx(err), err)
			return
		}

		item := queue[0]
		queue = queue[1:]

		def := cc.defs[item.nodeID]
		started := time.Now()
		res, fault := e.executeNode(ctx, cc, item.nodeID, def, item.msg)
		rec := message.NodeResult{
			NodeID:     item.nodeID,
			NodeType:   def.Type,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}

		var handle string
		out := item.msg
		switch {
		case fault != nil && ctx.Err() != nil:
			// the chain deadline or a cancel, not the node, killed this step
			e.finish(cc, h, outcomeForCtx(ctx.Err()), ctx.Err())
			return
		case fault != nil:
			rec.Handle = node.HandleFailure
			rec.Error = fault.Error()
			h.record(rec)
			e.bus.Publish(events.New(events.TypeNodeFailed).
				WithTenant(cc.chain.TenantID).
				WithChain(cc.chain.ID).
				WithExecution(h.ExecutionID).
				WithData("node", item.nodeID).
				WithData("nodeType", def.Type).
				WithData("error", fault.Error()))
			e.logger.Warn("node execution faulted",
				"chain", cc.chain.Name, "node", item.nodeID, "nodeType", def.Type,
				"executionId", h.ExecutionID.String(), "error", fault)

			targets := cc.targets(item.nodeID, node.HandleFailure)
			if len(targets) == 0 {
				if eh := cc.chain.Policy.ErrorHandlerNode; eh != "" && eh != item.nodeID {
					targets = []string{eh}
				} else {
					abandonErr = types.WrapError(types.EXECUTION_ABANDONED,
						"unhandled fault at node "+item.nodeID, fault)
					continue
				}
			}
			queue = enqueue(queue, targets, out)
			continue
		case res == nil || res.Handle == "":
			// consumed without emitting, the branch ends cleanly
			h.record(rec)
			continue
		default:
			handle = res.Handle
			if res.Message != nil {
				out = res.Message
			}
		}

		rec.Handle = handle
		h.record(rec)
		queue = enqueue(queue, cc.targets(item.nodeID, handle), out)
	}

	if abandonErr != nil {
		e.finish(cc, h, OutcomeAbandoned, abandonErr)
		return
	}
	e.finish(cc, h, OutcomeCompleted, nil)
}

func outcomeForCtx(err error) Outcome {
	if err == context.Canceled {
		return OutcomeCancelled
	}
	return OutcomeAbandoned
}

func (e *Engine) finish(cc *compiledChain, h *Handle, outcome Outcome, err error) {
	h.finish(outcome, err)
	trc := h.Trace()

	eventType := events.TypeExecutionCompleted
	if outcome != OutcomeCompleted {
		eventType = events.TypeExecutionAbandoned
	}
	ev := events.New(eventType).
		WithTenant(cc.chain.TenantID).
		WithChain(cc.chain.ID).
		WithExecution(h.ExecutionID).
		WithData("outcome", string(outcome)).
		WithData("nodesVisited", len(trc)).
		WithData("trace", trc)
	if err != nil {
		ev = ev.WithData("error", err.Error())
	}
	e.bus.Publish(ev)

	if outcome == OutcomeCompleted {
		e.logger.Debug("execution completed",
			"chain", cc.chain.Name, "executionId", h.ExecutionID.String(), "nodes", len(trc))
		return
	}
	e.logger.Warn("execution did not complete",
		"chain", cc.chain.Name, "executionId", h.ExecutionID.String(),
		"outcome", string(outcome), "error", err)
}

func enqueue(queue []workItem, targets []string, msg *message.Message) []workItem {
	for i, target := range targets {
		out := msg
		if i > 0 {
			out = msg.Clone()
		}
		queue = append(queue, workItem{nodeID: target, msg: out})
	}
	return queue
}

// nodeBudget returns the extra deadline applied to one node execution.
// Action and external nodes run under the chain deadline alone; lighter
// categories get a quarter of the chain timeout, floored at one second, so a
// stuck filter cannot eat the whole budget.
func nodeBudget(category node.Category, chainTimeout time.Duration) time.Duration {
	switch category {
	case node.CategoryAction, node.CategoryExternal:
		return 0
	}
	budget := chainTimeout / 4
	if budget < time.Second {
		budget = time.Second
	}
	return budget
}

type nodeOutput struct {
	res *node.Result
	err error
}

// executeNode runs one handler with panic recovery and a category deadline.
// The returned error is a fault; modeled failures come back inside the
// result on the failure handle.
func (e *Engine) executeNode(ctx context.Context, cc *compiledChain, nodeID string, def node.Definition, msg *message.Message) (*node.Result, error) {
	handler := cc.handlers[nodeID]
	if handler == nil {
		return nil, types.NewError(types.NODE_FAULT, "no handler for node "+nodeID)
	}

	timeout := cc.chain.Policy.Timeout()
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	nodeCtx := ctx
	if budget := nodeBudget(def.Category, timeout); budget > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	outCh := make(chan nodeOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outCh <- nodeOutput{err: types.NewError(types.NODE_FAULT,
					fmt.Sprintf("node %s panicked: %v", nodeID, r))}
			}
		}()
		res, err := handler.Execute(nodeCtx, msg)
		outCh <- nodeOutput{res: res, err: err}
	}()

	select {
	case out := <-outCh:
		if out.err != nil {
			return nil, types.WrapError(types.NODE_FAULT, "node "+nodeID, out.err)
		}
		return out.res, nil
	case <-nodeCtx.Done():
		// the goroutine keeps running until the handler notices the
		// cancelled context; its late result lands in the buffered channel
		return nil, types.WrapError(types.NODE_TIMEOUT, "node "+nodeID, nodeCtx.Err())
	}
}
