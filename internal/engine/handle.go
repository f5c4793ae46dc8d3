package engine

import (
	"context"
	"sync"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Outcome is the terminal state of an execution.
type Outcome string

const (
	// OutcomeRunning means the execution has not finished yet.
	OutcomeRunning Outcome = "RUNNING"
	// OutcomeCompleted means the worklist drained normally.
	OutcomeCompleted Outcome = "COMPLETED"
	// OutcomeAbandoned means a fault had no failure route and no error
	// handler, or the chain timeout expired.
	OutcomeAbandoned Outcome = "ABANDONED"
	// OutcomeCancelled means the caller cancelled the execution.
	OutcomeCancelled Outcome = "CANCELLED"
)

// Handle tracks one asynchronous chain execution.
type Handle struct {
	ExecutionID types.ID
	ChainID     types.ID

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	trace   message.Trace
	outcome Outcome
	err     error
}

func newHandle(execID, chainID types.ID, cancel context.CancelFunc) *Handle {
	return &Handle{
		ExecutionID: execID,
		ChainID:     chainID,
		cancel:      cancel,
		done:        make(chan struct{}),
		outcome:     OutcomeRunning,
	}
}

// Done is closed when the execution finishes for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the execution. Nodes already running finish their current
// step; queued work is discarded.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the execution finishes or ctx expires.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome reports the execution's terminal state, or OutcomeRunning.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Err returns the terminal error for abandoned or cancelled executions.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Trace returns a copy of the per-node results recorded so far.
func (h *Handle) Trace() message.Trace {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(message.Trace, len(h.trace))
	copy(out, h.trace)
	return out
}

func (h *Handle) record(r message.NodeResult) {
	h.mu.Lock()
	h.trace = append(h.trace, r)
	h.mu.Unlock()
}

func (h *Handle) finish(outcome Outcome, err error) {
	h.mu.Lock()
	h.outcome = outcome
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
