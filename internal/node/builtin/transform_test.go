package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub001/internal/node"
)

func TestMathNode(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		payload map[string]any
		field   string
		want    float64
	}{
		{"add", map[string]any{"operation": "add", "field": "x", "operand": 5.0}, map[string]any{"x": 10.0}, "x", 15.0},
		{"multiply to target", map[string]any{"operation": "multiply", "field": "x", "operand": 2.0, "targetField": "y"}, map[string]any{"x": 3.0}, "y", 6.0},
		{"divide", map[string]any{"operation": "divide", "field": "x", "operand": 4.0}, map[string]any{"x": 10.0}, "x", 2.5},
		{"abs", map[string]any{"operation": "abs", "field": "x"}, map[string]any{"x": -7.0}, "x", 7.0},
		{"round", map[string]any{"operation": "round", "field": "x"}, map[string]any{"x": 2.6}, "x", 3.0},
		{"min", map[string]any{"operation": "min", "field": "x", "operand": 1.0}, map[string]any{"x": 9.0}, "x", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := newMathNode(tt.config)
			require.NoError(t, err)

			msg := telemetry(tt.payload)
			res, err := h.Execute(context.Background(), msg)
			require.NoError(t, err)
			require.Equal(t, node.HandleSuccess, res.Handle)
			assert.Equal(t, tt.want, msg.Payload[tt.field])
		})
	}
}

func TestMathNode_Failures(t *testing.T) {
	h, err := newMathNode(map[string]any{"operation": "divide", "field": "x", "operand": 0.0})
	require.NoError(t, err)
	res, err := h.Execute(context.Background(), telemetry(map[string]any{"x": 1.0}))
	require.NoError(t, err)
	assert.Equal(t, node.HandleFailure, res.Handle)

	h, err = newMathNode(map[string]any{"operation": "add", "field": "missing", "operand": 1.0})
	require.NoError(t, err)
	res, err = h.Execute(context.Background(), telemetry(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, node.HandleFailure, res.Handle)

	_, err = newMathNode(map[string]any{"operation": "add", "operand": 1.0})
	assert.ErrorContains(t, err, "field is required")
}

func TestRenameKeys(t *testing.T) {
	h, err := newRenameKeys(map[string]any{"mappings": map[string]any{
		"p":    "pressure",
		"t":    "temperature",
		"gone": "never",
	}})
	require.NoError(t, err)

	msg := telemetry(map[string]any{"p": 1.0, "t": 2.0, "flow": 3.0})
	_, err = h.Execute(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"pressure": 1.0, "temperature": 2.0, "flow": 3.0}, msg.Payload)
}

func TestRenameKeys_BadConfig(t *testing.T) {
	_, err := newRenameKeys(map[string]any{})
	assert.ErrorContains(t, err, "mappings is required")

	_, err = newRenameKeys(map[string]any{"mappings": map[string]any{"a": 1}})
	assert.ErrorContains(t, err, "non-empty string")
}

func wellheadBinding() *Binding {
	return &Binding{
		ID:           "b-1",
		DataSourceID: "device-7",
		AssetID:      "asset-42",
		Mapping: []FieldMap{
			{Source: "p", Target: "pressure", Scale: 0.0689476, Component: "wellhead"},
			{Source: "t", Target: "temperature", Offset: -273.15, Component: "wellhead"},
			{Source: "rate", Target: "flowRate"},
		},
	}
}

func TestApplyMapping(t *testing.T) {
	h, err := newApplyMapping(nil)
	require.NoError(t, err)

	msg := telemetry(map[string]any{"p": 100.0, "t": 373.15, "rate": 12.0, "noise": "x"})
	msg.SetValue(BindingValueKey, wellheadBinding())

	res, err := h.Execute(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, node.HandleSuccess, res.Handle)

	assert.InDelta(t, 6.89476, msg.Payload["pressure"].(float64), 0.0001)
	assert.InDelta(t, 100.0, msg.Payload["temperature"].(float64), 0.0001)
	assert.Equal(t, 12.0, msg.Payload["flowRate"])
	assert.NotContains(t, msg.Payload, "noise", "unmapped fields drop by default")

	v, ok := msg.Value(ComponentValuesKey)
	require.True(t, ok)
	components := v.(map[string]map[string]any)
	require.Contains(t, components, "wellhead")
	assert.Contains(t, components["wellhead"], "pressure")
	assert.NotContains(t, components["wellhead"], "flowRate")
	require.Contains(t, components, "", "componentless targets belong to the asset root")
	assert.Equal(t, 12.0, components[""]["flowRate"])
	assert.NotContains(t, components[""], "pressure")
}

func TestApplyMapping_KeepUnmapped(t *testing.T) {
	h, err := newApplyMapping(map[string]any{"keepUnmapped": true})
	require.NoError(t, err)

	msg := telemetry(map[string]any{"p": 1.0, "noise": "x"})
	msg.SetValue(BindingValueKey, wellheadBinding())

	_, err = h.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Payload["noise"])
}

func TestApplyMapping_NoBindingIsFailure(t *testing.T) {
	h, err := newApplyMapping(nil)
	require.NoError(t, err)

	res, err := h.Execute(context.Background(), telemetry(map[string]any{"p": 1.0}))
	require.NoError(t, err)
	assert.Equal(t, node.HandleFailure, res.Handle)
}

func TestApplyMapping_EmptyMappingIsFailure(t *testing.T) {
	h, err := newApplyMapping(nil)
	require.NoError(t, err)

	msg := telemetry(map[string]any{"p": 1.0})
	msg.SetValue(BindingValueKey, &Binding{ID: "b-2", AssetID: "asset-1"})
	res, err := h.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, node.HandleFailure, res.Handle)
}

func TestRouteToComponents_DefaultsToRoot(t *testing.T) {
	h, err := newRouteToComponents(nil)
	require.NoError(t, err)

	msg := telemetry(map[string]any{"pressure": 1.0})
	msg.SetValue(BindingValueKey, &Binding{ID: "b-1", AssetID: "asset-1"})

	res, err := h.Execute(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, node.HandleSuccess, res.Handle)

	v, _ := msg.Value(ComponentValuesKey)
	components := v.(map[string]map[string]any)
	assert.Equal(t, msg.Payload, components[""])
}

func TestRouteToComponents_NoBindingIsFailure(t *testing.T) {
	h, err := newRouteToComponents(nil)
	require.NoError(t, err)

	res, err := h.Execute(context.Background(), telemetry(nil))
	require.NoError(t, err)
	assert.Equal(t, node.HandleFailure, res.Handle)
}
