package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/events"
	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/node/builtin"
	"github.com/diazhh/petroedge-sub001/internal/store"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

type fixture struct {
	engine   *Engine
	store    *store.MemoryStore
	registry *node.Registry
	bindings *builtin.MemoryBindings
	alarms   *builtin.MemoryAlarms
	series   *builtin.MemoryTimeseries
	twins    *builtin.MemoryTwins
}

// blockingHandler parks until its context ends, for cancellation tests.
type blockingHandler struct{}

func (blockingHandler) Execute(ctx context.Context, _ *message.Message) (*node.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	services, bindings, alarms, series, twins := builtin.MemoryServices()
	holder := &builtin.InvokerHolder{}
	services.Chains = holder

	registry := node.NewRegistry()
	require.NoError(t, builtin.Register(registry, services))
	registry.MustRegister(node.Definition{
		Type:          "block",
		Category:      node.CategoryFlow,
		Label:         "Block",
		Inputs:        1,
		OutputHandles: []string{node.HandleSuccess},
	}, func(map[string]any) (node.Handler, error) {
		return blockingHandler{}, nil
	})

	st := store.NewMemoryStore()
	eng := New(st, registry, opts...)
	holder.Set(eng)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	return &fixture{
		engine:   eng,
		store:    st,
		registry: registry,
		bindings: bindings,
		alarms:   alarms,
		series:   series,
		twins:    twins,
	}
}

func (f *fixture) save(t *testing.T, c *chain.Chain, err error) *chain.Chain {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), c))
	return c
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-h.Done():
	case <-ctx.Done():
		t.Fatal("execution did not finish in time")
	}
}

func alarmChain(tenant string, priority int, subjects []string, alarmType string) (*chain.Chain, error) {
	return chain.NewBuilder(tenant, "alarm-"+alarmType).
		WithID(types.NewID()).
		WithScope(subjects...).
		WithPriority(priority).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("alarm", "create_alarm", map[string]any{"alarmType": alarmType}).
		OnSuccess("ingest", "alarm").
		Build()
}

func TestSubmit_NoMatchingChain(t *testing.T) {
	f := newFixture(t)
	dropped, unsub := f.engine.Bus().Subscribe(events.Filter{Types: []events.Type{events.TypeMessageDropped}}, 4)
	defer unsub()

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	assert.Nil(t, h)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.NO_MATCHING_CHAIN))

	select {
	case ev := <-dropped:
		assert.Equal(t, "tenant-a", ev.TenantID)
		assert.Equal(t, "wellhead", ev.Data["subjectType"])
	case <-time.After(time.Second):
		t.Fatal("no drop event")
	}
}

func TestSubmit_RoutesByThreshold(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "overpressure").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("check", "threshold_filter", map[string]any{
			"field": "pressure", "operator": "gt", "value": 100,
		}).
		AddNode("alarm", "create_alarm", map[string]any{"alarmType": "OVERPRESSURE"}).
		AddNode("note", "log", map[string]any{"level": "debug"}).
		OnSuccess("ingest", "check").
		Connect("check", node.HandleTrue, "alarm").
		Connect("check", node.HandleFalse, "note").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"pressure": 150.0}))
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, OutcomeCompleted, h.Outcome())
	assert.True(t, h.Trace().Visited("alarm"))
	assert.False(t, h.Trace().Visited("note"))
	require.Len(t, f.alarms.Raised(), 1)
	assert.Equal(t, "OVERPRESSURE", f.alarms.Raised()[0].Type)

	h, err = f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"pressure": 50.0}))
	require.NoError(t, err)
	waitDone(t, h)
	assert.True(t, h.Trace().Visited("note"))
	assert.False(t, h.Trace().Visited("alarm"))
	assert.Len(t, f.alarms.Raised(), 1)
}

func TestSubmit_FanOutDeliversEachEdgeOnce(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "fan-out").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("alarm_a", "create_alarm", map[string]any{"alarmType": "A"}).
		AddNode("alarm_b", "create_alarm", map[string]any{"alarmType": "B"}).
		OnSuccess("ingest", "alarm_a").
		OnSuccess("ingest", "alarm_b").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, 1, h.Trace().Count("alarm_a"))
	assert.Equal(t, 1, h.Trace().Count("alarm_b"))
	raised := f.alarms.Raised()
	require.Len(t, raised, 2)
	typesSeen := []string{raised[0].Type, raised[1].Type}
	assert.ElementsMatch(t, []string{"A", "B"}, typesSeen)
}

func TestSubmit_RepeatedRunsVisitSameNodes(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "branching").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("check", "threshold_filter", map[string]any{"field": "p", "operator": "gt", "value": 50}).
		AddNode("alarm_a", "create_alarm", map[string]any{"alarmType": "A"}).
		AddNode("alarm_b", "create_alarm", map[string]any{"alarmType": "B"}).
		AddNode("note", "log", map[string]any{"level": "info"}).
		OnSuccess("ingest", "check").
		Connect("check", node.HandleTrue, "alarm_a").
		Connect("check", node.HandleTrue, "alarm_b").
		Connect("check", node.HandleFalse, "note").
		Build()
	f.save(t, c, err)

	var first []string
	for run := 0; run < 5; run++ {
		h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
			map[string]any{"p": 80.0}))
		require.NoError(t, err)
		waitDone(t, h)

		visited := make([]string, 0, len(h.Trace()))
		for _, r := range h.Trace() {
			visited = append(visited, r.NodeID)
		}
		if run == 0 {
			first = visited
			assert.ElementsMatch(t, []string{"ingest", "check", "alarm_a", "alarm_b"}, visited)
			continue
		}
		assert.ElementsMatch(t, first, visited, "run %d visited a different node set", run)
	}
}

func TestSubmit_StrayNodeIsNotAnEntryPoint(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "with-stray").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("note", "log", map[string]any{"level": "info"}).
		AddNode("stray_alarm", "create_alarm", map[string]any{"alarmType": "STRAY"}).
		OnSuccess("ingest", "note").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	assert.True(t, h.Trace().Visited("note"))
	assert.False(t, h.Trace().Visited("stray_alarm"), "non-source node without incoming edges must never run")
	assert.Empty(t, f.alarms.Raised())
}

func TestSubmit_RootChainFailureRoutesToLogSink(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewRootChain("tenant-a")
	f.save(t, c, err)

	// no binding registered for the originator, resolve_binding must fail
	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"p": 100.0}))
	require.NoError(t, err)
	waitDone(t, h)

	trc := h.Trace()
	assert.Equal(t, OutcomeCompleted, h.Outcome())
	assert.True(t, trc.Visited("ingest"))
	assert.True(t, trc.Visited("resolve_binding"))
	assert.Equal(t, 1, trc.Count("log_errors"))
	assert.False(t, trc.Visited("apply_mapping"))
	assert.False(t, trc.Visited("route_to_components"))
	assert.False(t, trc.Visited("save_to_digital_twin"))

	for _, r := range trc {
		if r.NodeID == "resolve_binding" {
			assert.Equal(t, node.HandleFailure, r.Handle)
		}
	}
}

func TestSubmit_RootChainHappyPath(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewRootChain("tenant-a")
	f.save(t, c, err)

	f.bindings.Put("tenant-a", "device-7", &builtin.Binding{
		ID:           "b-1",
		DataSourceID: "device-7",
		AssetID:      "asset-42",
		Mapping: []builtin.FieldMap{
			{Source: "p", Target: "pressure", Scale: 0.0689476, Component: "wellhead"},
			{Source: "rate", Target: "flowRate"},
		},
	})

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"p": 100.0, "rate": 12.5}))
	require.NoError(t, err)
	waitDone(t, h)

	require.Equal(t, OutcomeCompleted, h.Outcome())
	assert.True(t, h.Trace().Visited("save_to_digital_twin"))
	assert.False(t, h.Trace().Visited("log_errors"))

	wellhead := f.twins.State("tenant-a", "asset-42/wellhead")
	require.NotNil(t, wellhead)
	assert.InDelta(t, 6.89476, wellhead["pressure"], 1e-6)

	root := f.twins.State("tenant-a", "asset-42")
	require.NotNil(t, root)
	assert.InDelta(t, 12.5, root["flowRate"], 1e-9)
}

func TestSubmit_AdmissionRejectsOverBudget(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "budgeted").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		WithPolicy(chain.ExecutionPolicy{MaxExecutionsPerMinute: 2}).
		AddNode("ingest", "data_source_input", nil).
		AddNode("note", "log", nil).
		OnSuccess("ingest", "note").
		Build()
	f.save(t, c, err)

	rejected, unsub := f.engine.Bus().Subscribe(events.Filter{Types: []events.Type{events.TypeAdmissionRejected}}, 4)
	defer unsub()

	for i := 0; i < 2; i++ {
		h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
		require.NoError(t, err)
		waitDone(t, h)
	}

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	assert.Nil(t, h)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.EXECUTION_REJECTED))

	select {
	case ev := <-rejected:
		assert.Equal(t, "rate_limited", ev.Data["reason"])
	case <-time.After(time.Second):
		t.Fatal("no rejection event")
	}
}

func TestSubmit_HighestPriorityChainWins(t *testing.T) {
	f := newFixture(t)
	low, err := alarmChain("tenant-a", 50, []string{"wellhead"}, "LOW")
	f.save(t, low, err)
	high, err := alarmChain("tenant-a", 100, []string{"wellhead"}, "HIGH")
	f.save(t, high, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	raised := f.alarms.Raised()
	require.Len(t, raised, 1)
	assert.Equal(t, "HIGH", raised[0].Type)
}

func TestSubmit_FaultFallsBackToErrorHandler(t *testing.T) {
	f := newFixture(t)
	// rule_chain pointing at a chain that does not exist faults at execution
	c, err := chain.NewBuilder("tenant-a", "faulty").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		WithPolicy(chain.ExecutionPolicy{ErrorHandlerNode: "sink"}).
		AddNode("ingest", "data_source_input", nil).
		AddNode("call", "rule_chain", map[string]any{"chainId": types.NewID().String()}).
		AddNode("sink", "log", map[string]any{"level": "error"}).
		OnSuccess("ingest", "call").
		Build()
	f.save(t, c, err)

	failed, unsub := f.engine.Bus().Subscribe(events.Filter{Types: []events.Type{events.TypeNodeFailed}}, 4)
	defer unsub()

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, OutcomeCompleted, h.Outcome())
	assert.True(t, h.Trace().Visited("sink"))

	select {
	case ev := <-failed:
		assert.Equal(t, "call", ev.Data["node"])
	case <-time.After(time.Second):
		t.Fatal("no node.failed event")
	}
}

func TestSubmit_UnhandledFaultAbandons(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "faulty").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("call", "rule_chain", map[string]any{"chainId": types.NewID().String()}).
		OnSuccess("ingest", "call").
		Build()
	f.save(t, c, err)

	abandoned, unsub := f.engine.Bus().Subscribe(events.Filter{Types: []events.Type{events.TypeExecutionAbandoned}}, 4)
	defer unsub()

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, OutcomeAbandoned, h.Outcome())
	require.Error(t, h.Err())
	assert.True(t, types.IsCode(h.Err(), types.EXECUTION_ABANDONED))

	select {
	case ev := <-abandoned:
		assert.Equal(t, string(OutcomeAbandoned), ev.Data["outcome"])
	case <-time.After(time.Second):
		t.Fatal("no abandonment event")
	}
}

func TestHandle_Cancel(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "stuck").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("wait", "block", nil).
		OnSuccess("ingest", "wait").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	h.Cancel()
	waitDone(t, h)

	assert.Equal(t, OutcomeCancelled, h.Outcome())
}

func TestSubmit_ChainTimeoutAbandons(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "slow").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		WithPolicy(chain.ExecutionPolicy{TimeoutMs: 50}).
		AddNode("ingest", "data_source_input", nil).
		AddNode("wait", "block", nil).
		OnSuccess("ingest", "wait").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, OutcomeAbandoned, h.Outcome())
}

func TestSubmit_MessageTypeSwitchFallsBackToOther(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "by-type").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("switch", "message_type_switch", nil).
		AddNode("attr_alarm", "create_alarm", map[string]any{"alarmType": "ATTR"}).
		AddNode("other_alarm", "create_alarm", map[string]any{"alarmType": "OTHER"}).
		OnSuccess("ingest", "switch").
		Connect("switch", "ATTRIBUTE", "attr_alarm").
		Connect("switch", node.HandleOther, "other_alarm").
		Build()
	f.save(t, c, err)

	// data_source_input stamps TELEMETRY, which has no wired handle
	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	raised := f.alarms.Raised()
	require.Len(t, raised, 1)
	assert.Equal(t, "OTHER", raised[0].Type)
}

func TestSubmit_MergeJoinsBranches(t *testing.T) {
	f := newFixture(t)
	c, err := chain.NewBuilder("tenant-a", "join").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("left", "math", map[string]any{"operation": "add", "field": "a", "operand": 1, "targetField": "left"}).
		AddNode("right", "math", map[string]any{"operation": "add", "field": "a", "operand": 2, "targetField": "right"}).
		AddNode("join", "merge", map[string]any{"strategy": "all"}).
		AddNode("alarm", "create_alarm", map[string]any{"alarmType": "JOINED"}).
		OnSuccess("ingest", "left").
		OnSuccess("ingest", "right").
		OnSuccess("left", "join").
		OnSuccess("right", "join").
		OnSuccess("join", "alarm").
		Build()
	f.save(t, c, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"a": 10.0}))
	require.NoError(t, err)
	waitDone(t, h)

	require.Equal(t, OutcomeCompleted, h.Outcome())
	// two arrivals at the merge, one emission beyond it
	assert.Equal(t, 2, h.Trace().Count("join"))
	assert.Equal(t, 1, h.Trace().Count("alarm"))

	raised := f.alarms.Raised()
	require.Len(t, raised, 1)
	assert.InDelta(t, 11.0, raised[0].Details["left"], 1e-9)
	assert.InDelta(t, 12.0, raised[0].Details["right"], 1e-9)
}

func TestSubmit_RuleChainInvokesSubChain(t *testing.T) {
	f := newFixture(t)
	sub, err := chain.NewBuilder("tenant-a", "convert").
		WithID(types.NewID()).
		AddNode("ingest", "data_source_input", nil).
		AddNode("scale", "math", map[string]any{"operation": "multiply", "field": "a", "operand": 10}).
		OnSuccess("ingest", "scale").
		Build()
	f.save(t, sub, err)

	parent, err := chain.NewBuilder("tenant-a", "caller").
		WithID(types.NewID()).
		WithStatus(chain.StatusActive).
		AddNode("ingest", "data_source_input", nil).
		AddNode("call", "rule_chain", map[string]any{"chainId": sub.ID.String()}).
		AddNode("alarm", "create_alarm", map[string]any{"alarmType": "SCALED"}).
		OnSuccess("ingest", "call").
		OnSuccess("call", "alarm").
		Build()
	f.save(t, parent, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7",
		map[string]any{"a": 4.0}))
	require.NoError(t, err)
	waitDone(t, h)

	require.Equal(t, OutcomeCompleted, h.Outcome())
	raised := f.alarms.Raised()
	require.Len(t, raised, 1)
	assert.InDelta(t, 40.0, raised[0].Details["a"], 1e-9)
}

func TestInvalidateTenant_DropsCachedResolution(t *testing.T) {
	f := newFixture(t)
	first, err := alarmChain("tenant-a", 50, nil, "FIRST")
	f.save(t, first, err)

	h, err := f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	first.Status = chain.StatusDisabled
	require.NoError(t, f.store.Save(context.Background(), first))
	second, err := alarmChain("tenant-a", 50, nil, "SECOND")
	f.save(t, second, err)
	f.engine.InvalidateTenant("tenant-a")

	h, err = f.engine.Submit(context.Background(), message.New("tenant-a", "wellhead", "device-7", nil))
	require.NoError(t, err)
	waitDone(t, h)

	raised := f.alarms.Raised()
	require.Len(t, raised, 2)
	assert.Equal(t, "SECOND", raised[1].Type)
}

func TestSubmit_ExecutionIDStampedAndTenantIsolated(t *testing.T) {
	f := newFixture(t)
	c, cerr := alarmChain("tenant-a", 50, nil, "A")
	f.save(t, c, cerr)

	msg := message.New("tenant-b", "wellhead", "device-7", nil)
	_, err := f.engine.Submit(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.NO_MATCHING_CHAIN))

	msg = message.New("tenant-a", "wellhead", "device-7", nil)
	h, err := f.engine.Submit(context.Background(), msg)
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, h.ExecutionID, msg.Meta.ExecutionID)
	assert.False(t, h.ExecutionID.IsZero())
}
