package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validChainYAML = `
tenantId: tenant-a
name: overpressure
nodes:
  - id: ingest
    type: data_source_input
  - id: check
    type: threshold_filter
    config:
      field: pressure
      operator: gt
      value: 100
  - id: alarm
    type: create_alarm
    config:
      alarmType: OVERPRESSURE
edges:
  - source: ingest
    target: check
  - source: check
    sourceHandle: "true"
    target: alarm
`

const invalidChainYAML = `
tenantId: tenant-a
name: broken
nodes:
  - id: a
    type: no_such_type
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newOutCommand(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd
}

func TestValidate_ValidDefinition(t *testing.T) {
	var buf bytes.Buffer
	err := runValidate(newOutCommand(&buf), []string{writeFile(t, "chain.yaml", validChainYAML)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "OK (3 nodes, 2 edges)")
}

func TestValidate_InvalidDefinition(t *testing.T) {
	var buf bytes.Buffer
	err := runValidate(newOutCommand(&buf), []string{
		writeFile(t, "good.yaml", validChainYAML),
		writeFile(t, "bad.yaml", invalidChainYAML),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 definitions invalid")
	assert.Contains(t, buf.String(), "no_such_type")
}

func TestCatalog_EmitsEveryNodeType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runCatalog(newOutCommand(&buf), nil))

	var defs []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &defs))
	assert.Len(t, defs, 24)
}
