package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/engine"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/node/builtin"
	"github.com/diazhh/petroedge-sub001/internal/observability"
	"github.com/diazhh/petroedge-sub001/internal/store"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore, *builtin.MemoryAlarms) {
	t.Helper()

	services, _, alarms, _, _ := builtin.MemoryServices()
	holder := &builtin.InvokerHolder{}
	services.Chains = holder

	registry := node.NewRegistry()
	require.NoError(t, builtin.Register(registry, services))

	st := store.NewMemoryStore(store.WithValidator(chain.NewValidator(registry)))
	eng := engine.New(st, registry)
	holder.Set(eng)

	srv := NewServer(eng, registry, observability.NopLogger())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	return ts, st, alarms
}

func seedAlarmChain(t *testing.T, st *store.MemoryStore, policy chain.ExecutionPolicy) {
	t.Helper()
	c, err := chain.NewBuilder("tenant-a", "overpressure").
		WithID(types.NewID()).
		WithScope("wellhead").
		WithStatus(chain.StatusActive).
		WithPolicy(policy).
		AddNode("ingest", "data_source_input", nil).
		AddNode("check", "threshold_filter", map[string]any{
			"field": "pressure", "operator": "gt", "value": 100,
		}).
		AddNode("alarm", "create_alarm", map[string]any{"alarmType": "OVERPRESSURE"}).
		OnSuccess("ingest", "check").
		Connect("check", node.HandleTrue, "alarm").
		Build()
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), c))
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalog(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var defs []node.Definition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	assert.Len(t, defs, 24)
}

func TestSubmitMessage_Accepted(t *testing.T) {
	ts, st, alarms := newTestServer(t)
	seedAlarmChain(t, st, chain.ExecutionPolicy{})

	resp, body := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages",
		`{"subjectType": "wellhead", "originator": "device-7", "payload": {"pressure": 150}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out submitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "ACCEPTED", out.Status)
	assert.NotEmpty(t, out.ExecutionID)
	assert.NotEmpty(t, out.ChainID)

	require.Eventually(t, func() bool {
		return len(alarms.Raised()) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitMessage_DroppedWithoutChain(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, body := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages",
		`{"subjectType": "wellhead", "payload": {}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "DROPPED", out.Status)
}

func TestSubmitMessage_ScopeMismatchDropped(t *testing.T) {
	ts, st, _ := newTestServer(t)
	seedAlarmChain(t, st, chain.ExecutionPolicy{})

	resp, body := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages",
		`{"subjectType": "separator", "payload": {"pressure": 150}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "DROPPED", out.Status)
}

func TestSubmitMessage_RejectedOverBudget(t *testing.T) {
	ts, st, _ := newTestServer(t)
	seedAlarmChain(t, st, chain.ExecutionPolicy{MaxExecutionsPerMinute: 1})

	body := `{"subjectType": "wellhead", "originator": "device-7", "payload": {"pressure": 10}}`
	resp, _ := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, raw := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var out submitResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "REJECTED", out.Status)
	assert.Contains(t, out.Reason, "rate_limited")
}

func TestSubmitMessage_BadRequests(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, _ := postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages", `{"payload": {}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, ts.URL+"/api/v1/tenants/tenant-a/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
