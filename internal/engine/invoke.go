package engine

import (
	"context"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

type invokeDepthKey struct{}

func invokeDepth(ctx context.Context) int {
	d, _ := ctx.Value(invokeDepthKey{}).(int)
	return d
}

// Invoke runs another chain synchronously on behalf of a rule_chain node and
// returns the message that left the sub-chain, or nil when every branch was
// consumed. Graph validation cannot see cycles across chains, so nesting
// depth is capped.
func (e *Engine) Invoke(ctx context.Context, chainID string, msg *message.Message) (*message.Message, error) {
	if invokeDepth(ctx) >= maxInvokeDepth {
		return nil, types.NewError(types.NODE_FAULT, "chain invocation nested too deeply")
	}
	id, err := types.ParseID(chainID)
	if err != nil {
		return nil, types.WrapError(types.NODE_CONFIG_INVALID, "chain id", err)
	}
	cc, err := e.compiledByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, invokeDepthKey{}, invokeDepth(ctx)+1)
	return e.runSync(ctx, cc, msg.Clone())
}

// runSync executes a chain inline. The last message emitted on a handle with
// no outgoing edges is the chain's output.
func (e *Engine) runSync(ctx context.Context, cc *compiledChain, msg *message.Message) (*message.Message, error) {
	queue := make([]workItem, 0, len(cc.entries))
	for i, entry := range cc.entries {
		in := msg
		if i > 0 {
			in = msg.Clone()
		}
		queue = append(queue, workItem{nodeID: entry, msg: in})
	}

	var final *message.Message
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(types.EXECUTION_ABANDONED, "invoked chain interrupted", err)
		}

		item := queue[0]
		queue = queue[1:]

		def := cc.defs[item.nodeID]
		res, fault := e.executeNode(ctx, cc, item.nodeID, def, item.msg)
		if fault != nil {
			targets := cc.targets(item.nodeID, node.HandleFailure)
			if len(targets) == 0 {
				return nil, fault
			}
			queue = enqueue(queue, targets, item.msg)
			continue
		}
		if res == nil || res.Handle == "" {
			continue
		}
		out := item.msg
		if res.Message != nil {
			out = res.Message
		}
		targets := cc.targets(item.nodeID, res.Handle)
		if len(targets) == 0 {
			final = out
			continue
		}
		queue = enqueue(queue, targets, out)
	}
	return final, nil
}

// RunStartupChains executes every active chain of the tenant whose policy
// requests an execution at startup, feeding each a synthetic startup message.
// Chains that fail to compile are logged and skipped.
func (e *Engine) RunStartupChains(ctx context.Context, tenantID string) []*Handle {
	chains, err := e.store.ListActive(ctx, tenantID)
	if err != nil {
		e.logger.Error("list chains for startup failed", "tenant", tenantID, "error", err)
		return nil
	}

	var handles []*Handle
	for _, c := range chains {
		if !c.Policy.ExecuteOnStartup {
			continue
		}
		cc, err := e.compile(c)
		if err != nil {
			e.logger.Error("compile startup chain failed",
				"chain", c.Name, "tenant", tenantID, "error", err)
			continue
		}
		msg := message.New(tenantID, "", "system", map[string]any{
			"startup": true,
			"at":      time.Now().UTC().Format(time.RFC3339),
		})
		msg.Meta.MessageType = "STARTUP"
		handles = append(handles, e.start(ctx, cc, msg))
	}
	return handles
}
