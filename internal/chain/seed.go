package chain

import "github.com/diazhh/petroedge-sub001/internal/types"

// RootChainName identifies the telemetry processing chain provisioned for
// every new tenant.
const RootChainName = "ROOT_TELEMETRY_PROCESSING"

// RootChainPriority leaves headroom below for tenant-authored chains that
// should not preempt the root pipeline, and above for overrides.
const RootChainPriority = 100

// rootChainID is deterministic per tenant only in name; each tenant gets a
// fresh ID at provisioning time.

// NewRootChain builds the default telemetry pipeline for a tenant: ingest,
// resolve the data source binding, apply the mapping, fan values out to
// asset components, persist to the digital twin. Every processing step wires
// its failure handle into a shared log sink so a broken binding or mapping
// is visible without stopping other tenants' traffic.
func NewRootChain(tenantID string) (*Chain, error) {
	return NewBuilder(tenantID, RootChainName).
		WithID(types.NewID()).
		WithPriority(RootChainPriority).
		WithStatus(StatusActive).
		WithPolicy(ExecutionPolicy{
			TimeoutMs:              30_000,
			MaxExecutionsPerMinute: 0, // root pipeline is never rate limited
			ErrorHandlerNode:       "log_errors",
		}).
		AddNode("ingest", "data_source_input", nil).
		AddNode("resolve_binding", "resolve_binding", map[string]any{
			"required": true,
		}).
		AddNode("apply_mapping", "apply_mapping", nil).
		AddNode("route_to_components", "route_to_components", nil).
		AddNode("save_to_digital_twin", "save_to_digital_twin", nil).
		AddNode("log_errors", "log", map[string]any{
			"level":   "warn",
			"message": "root telemetry chain step failed",
		}).
		OnSuccess("ingest", "resolve_binding").
		OnSuccess("resolve_binding", "apply_mapping").
		OnSuccess("apply_mapping", "route_to_components").
		OnSuccess("route_to_components", "save_to_digital_twin").
		OnFailure("resolve_binding", "log_errors").
		OnFailure("apply_mapping", "log_errors").
		OnFailure("route_to_components", "log_errors").
		OnFailure("save_to_digital_twin", "log_errors").
		Build()
}
