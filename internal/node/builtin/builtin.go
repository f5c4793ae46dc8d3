package builtin

import (
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/schema"
)

// Register installs the stock node catalog into the registry. Definitions
// carry the config schemas the authoring UI renders and the validator
// enforces.
func Register(reg *node.Registry, services Services) error {
	entries := []struct {
		def     node.Definition
		factory node.Factory
	}{
		{
			def: node.Definition{
				Type:     "data_source_input",
				Category: node.CategoryInput,
				Label:    "Data Source Input",
				Description: "Entry point for telemetry from a bound data source. " +
					"Stamps the default message type.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"sourceType":  schema.NewStringField("tag messages with a source kind (modbus, opcua, mqtt, api)"),
					"messageType": schema.NewStringField("message type stamped when none is set").WithDefault("TELEMETRY"),
				}, nil),
				Inputs:        0,
				OutputHandles: []string{node.HandleSuccess},
			},
			factory: newDataSourceInput,
		},
		{
			def: node.Definition{
				Type:        "script_filter",
				Category:    node.CategoryFilter,
				Label:       "Script Filter",
				Description: "Routes true/false on a sandboxed boolean expression over msg and metadata.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"expression": schema.NewStringField("boolean CEL expression, e.g. msg.pressure > 150.0"),
				}, []string{"expression"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleTrue, node.HandleFalse, node.HandleFailure},
			},
			factory: newScriptFilter,
		},
		{
			def: node.Definition{
				Type:        "threshold_filter",
				Category:    node.CategoryFilter,
				Label:       "Threshold Filter",
				Description: "Compares a numeric payload field against a bound.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"field":    schema.NewStringField("payload field, dotted paths allowed"),
					"operator": schema.NewStringField("comparison").WithEnum("gt", "gte", "lt", "lte", "eq", "neq"),
					"value":    schema.NewNumberField("threshold"),
				}, []string{"field", "operator", "value"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleTrue, node.HandleFalse, node.HandleFailure},
			},
			factory: newThresholdFilter,
		},
		{
			def: node.Definition{
				Type:        "check_fields_presence",
				Category:    node.CategoryFilter,
				Label:       "Check Fields Presence",
				Description: "Routes true only when every listed field exists in the payload.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"fields": schema.NewArrayField("fields that must be present", schema.NewStringField("")),
				}, []string{"fields"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleTrue, node.HandleFalse},
			},
			factory: newCheckFieldsPresence,
		},
		{
			def: node.Definition{
				Type:        "message_type_switch",
				Category:    node.CategoryFilter,
				Label:       "Message Type Switch",
				Description: "Routes on the message type; unmatched types take the other handle.",
				ConfigSchema: schema.NewObjectSchema(nil, nil),
				Inputs:         1,
				OutputHandles:  []string{node.HandleOther},
				DynamicOutputs: true,
			},
			factory: newMessageTypeSwitch,
		},
		{
			def: node.Definition{
				Type:        "rate_limit",
				Category:    node.CategoryFilter,
				Label:       "Rate Limit",
				Description: "Token-bucket throttle, per originator or per node.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"ratePerSecond": schema.NewNumberField("sustained rate").WithMin(0.001).WithDefault(1),
					"burst":         schema.NewIntegerField("burst capacity").WithMin(1).WithDefault(1),
					"perOriginator": schema.NewBooleanField("separate budget per originator").WithDefault(true),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, HandleRejected},
			},
			factory: newRateLimitNode,
		},
		{
			def: node.Definition{
				Type:        "debounce",
				Category:    node.CategoryFilter,
				Label:       "Debounce",
				Description: "Suppresses repeats of the same key inside a sliding window.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"intervalMs": schema.NewIntegerField("window in milliseconds").WithMin(1).WithDefault(1000),
					"keyField":   schema.NewStringField("payload field used as the dedupe key; originator when empty"),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, HandleRejected},
			},
			factory: newDebounceNode,
		},
		{
			def: node.Definition{
				Type:        "resolve_binding",
				Category:    node.CategoryEnrich,
				Label:       "Resolve Binding",
				Description: "Attaches the data source binding of the originator.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"required": schema.NewBooleanField("fail when no binding exists").WithDefault(true),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newResolveBinding(services),
		},
		{
			def: node.Definition{
				Type:        "originator_attributes",
				Category:    node.CategoryEnrich,
				Label:       "Originator Attributes",
				Description: "Copies server-side attributes of the originator into metadata.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"keys":   schema.NewArrayField("attribute keys, empty for all", schema.NewStringField("")),
					"prefix": schema.NewStringField("prefix for metadata keys"),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newOriginatorAttributes(services),
		},
		{
			def: node.Definition{
				Type:        "tenant_attributes",
				Category:    node.CategoryEnrich,
				Label:       "Tenant Attributes",
				Description: "Copies tenant-level attributes into metadata.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"keys":   schema.NewArrayField("attribute keys, empty for all", schema.NewStringField("")),
					"prefix": schema.NewStringField("prefix for metadata keys"),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newTenantAttributes(services),
		},
		{
			def: node.Definition{
				Type:        "script_transform",
				Category:    node.CategoryTransform,
				Label:       "Script Transform",
				Description: "Replaces the payload with the map a sandboxed expression produces.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"expression": schema.NewStringField("CEL expression producing a map"),
				}, []string{"expression"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newScriptTransform,
		},
		{
			def: node.Definition{
				Type:        "formula",
				Category:    node.CategoryTransform,
				Label:       "Formula",
				Description: "Writes the numeric result of an expression to a payload field.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"expression":  schema.NewStringField("numeric CEL expression"),
					"targetField": schema.NewStringField("payload field to write"),
				}, []string{"expression", "targetField"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newFormula,
		},
		{
			def: node.Definition{
				Type:        "math",
				Category:    node.CategoryTransform,
				Label:       "Math",
				Description: "Applies one arithmetic operation to a numeric field.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"operation":   schema.NewStringField("operation").WithEnum("add", "subtract", "multiply", "divide", "min", "max", "abs", "round"),
					"field":       schema.NewStringField("source field"),
					"operand":     schema.NewNumberField("second operand"),
					"targetField": schema.NewStringField("destination field; source when empty"),
				}, []string{"operation", "field"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newMathNode,
		},
		{
			def: node.Definition{
				Type:        "rename_keys",
				Category:    node.CategoryTransform,
				Label:       "Rename Keys",
				Description: "Renames top-level payload keys.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"mappings": schema.NewObjectField("old key to new key"),
				}, []string{"mappings"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess},
			},
			factory: newRenameKeys,
		},
		{
			def: node.Definition{
				Type:        "apply_mapping",
				Category:    node.CategoryTransform,
				Label:       "Apply Mapping",
				Description: "Translates raw fields through the resolved binding's mapping.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"keepUnmapped": schema.NewBooleanField("carry unmapped fields through").WithDefault(false),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newApplyMapping,
		},
		{
			def: node.Definition{
				Type:         "route_to_components",
				Category:     node.CategoryTransform,
				Label:        "Route To Components",
				Description:  "Groups mapped values by asset component for twin updates.",
				ConfigSchema: schema.NewObjectSchema(nil, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newRouteToComponents,
		},
		{
			def: node.Definition{
				Type:        "log",
				Category:    node.CategoryAction,
				Label:       "Log",
				Description: "Writes the message to the structured log. The standard error sink.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"level":   schema.NewStringField("log level").WithEnum("debug", "info", "warn", "error").WithDefault("info"),
					"message": schema.NewStringField("log line"),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess},
			},
			factory: newLogNode(services),
		},
		{
			def: node.Definition{
				Type:        "create_alarm",
				Category:    node.CategoryAction,
				Label:       "Create Alarm",
				Description: "Raises an alarm with the payload as detail.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"alarmType": schema.NewStringField("alarm type identifier"),
					"severity":  schema.NewStringField("severity").WithEnum("INDETERMINATE", "WARNING", "MINOR", "MAJOR", "CRITICAL").WithDefault("WARNING"),
					"message":   schema.NewStringField("human readable alarm text"),
				}, []string{"alarmType"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newCreateAlarm(services),
		},
		{
			def: node.Definition{
				Type:        "save_timeseries",
				Category:    node.CategoryAction,
				Label:       "Save Timeseries",
				Description: "Persists numeric payload fields as time-series samples.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"fields": schema.NewArrayField("fields to persist; every numeric field when empty", schema.NewStringField("")),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newSaveTimeseries(services),
		},
		{
			def: node.Definition{
				Type:         "save_to_digital_twin",
				Category:     node.CategoryAction,
				Label:        "Save To Digital Twin",
				Description:  "Updates the bound asset's twin state, per component when grouped.",
				ConfigSchema: schema.NewObjectSchema(nil, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newSaveToDigitalTwin(services),
		},
		{
			def: node.Definition{
				Type:        "rest_api_call",
				Category:    node.CategoryExternal,
				Label:       "REST API Call",
				Description: "Calls an external HTTP endpoint with the message as JSON body.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"url":       schema.NewStringField("endpoint URL").WithPattern(`^https?://`),
					"method":    schema.NewStringField("HTTP method").WithEnum("GET", "POST", "PUT", "PATCH", "DELETE", "HEAD").WithDefault("POST"),
					"headers":   schema.NewObjectField("extra request headers"),
					"timeoutMs": schema.NewIntegerField("request timeout").WithMin(1).WithDefault(10000),
				}, []string{"url"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newRestAPICall(services),
		},
		{
			def: node.Definition{
				Type:        "rule_chain",
				Category:    node.CategoryFlow,
				Label:       "Rule Chain",
				Description: "Runs another chain and resumes with its final message.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"chainId": schema.NewStringField("target chain id"),
				}, []string{"chainId"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess, node.HandleFailure},
			},
			factory: newRuleChainNode(services),
		},
		{
			def: node.Definition{
				Type:        "merge",
				Category:    node.CategoryFlow,
				Label:       "Merge",
				Description: "Joins fan-out branches: first arrival, all arrivals unioned, or the latest.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"strategy": schema.NewStringField("join strategy").WithEnum(MergeFirst, MergeAll, MergeLatest).WithDefault(MergeAll),
					"expect":   schema.NewIntegerField("arrivals to wait for; incoming edge count when omitted").WithMin(1),
				}, nil),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess},
			},
			factory: newMergeNode,
		},
		{
			def: node.Definition{
				Type:        "checkpoint",
				Category:    node.CategoryFlow,
				Label:       "Checkpoint",
				Description: "Stamps a named marker on the message for authoring diagnostics.",
				ConfigSchema: schema.NewObjectSchema(map[string]schema.SchemaField{
					"name": schema.NewStringField("checkpoint name"),
				}, []string{"name"}),
				Inputs:        1,
				OutputHandles: []string{node.HandleSuccess},
			},
			factory: newCheckpointNode(services),
		},
	}

	for _, e := range entries {
		if err := reg.Register(e.def, e.factory); err != nil {
			return err
		}
	}
	return nil
}
