package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// logNode writes the message to the structured log and passes it through.
// It doubles as the standard error sink: wire failure handles into it.
type logNode struct {
	services Services
	level    string
	message  string
}

func newLogNode(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &logNode{
			services: services,
			level:    cfgString(config, "level", "info"),
			message:  cfgString(config, "message", "rule chain message"),
		}, nil
	}
}

func (h *logNode) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	args := []any{
		"messageId", msg.ID.String(),
		"tenant", msg.Meta.TenantID,
		"originator", msg.Meta.Originator,
		"payload", msg.Payload,
	}
	if len(msg.Meta.Values) > 0 {
		args = append(args, "values", msg.Meta.Values)
	}

	logger := h.services.logger()
	switch h.level {
	case "debug":
		logger.Debug(h.message, args...)
	case "warn":
		logger.Warn(h.message, args...)
	case "error":
		logger.Error(h.message, args...)
	default:
		logger.Info(h.message, args...)
	}
	return node.Success(msg), nil
}

// createAlarm raises an alarm through the alarm sink. Severity and type come
// from config; the payload rides along as detail.
type createAlarm struct {
	services  Services
	alarmType string
	severity  string
	text      string
}

func newCreateAlarm(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		alarmType := cfgString(config, "alarmType", "")
		if alarmType == "" {
			return nil, fmt.Errorf("alarmType is required")
		}
		return &createAlarm{
			services:  services,
			alarmType: alarmType,
			severity:  cfgString(config, "severity", "WARNING"),
			text:      cfgString(config, "message", ""),
		}, nil
	}
}

func (h *createAlarm) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Alarms == nil {
		return nil, fmt.Errorf("no alarm sink configured")
	}

	alarm := Alarm{
		TenantID:   msg.Meta.TenantID,
		Originator: msg.Meta.Originator,
		Type:       h.alarmType,
		Severity:   h.severity,
		Message:    h.text,
		Details:    msg.Payload,
		RaisedAt:   time.Now().UTC(),
	}
	if binding, ok := bindingFrom(msg); ok {
		alarm.AssetID = binding.AssetID
	}

	if err := h.services.Alarms.Raise(ctx, alarm); err != nil {
		return nil, fmt.Errorf("raise alarm %s: %w", h.alarmType, err)
	}
	return node.Success(msg), nil
}

// saveTimeseries persists numeric payload fields as time-series samples.
// With a fields list only those fields are written; otherwise every numeric
// top-level field is.
type saveTimeseries struct {
	services Services
	fields   []string
}

func newSaveTimeseries(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &saveTimeseries{
			services: services,
			fields:   cfgStrings(config, "fields"),
		}, nil
	}
}

func (h *saveTimeseries) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Timeseries == nil {
		return nil, fmt.Errorf("no timeseries writer configured")
	}

	ts := msg.Meta.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var samples []Sample
	if len(h.fields) > 0 {
		for _, f := range h.fields {
			raw, ok := lookupPath(msg.Payload, f)
			if !ok {
				continue
			}
			if v, isNum := toNumber(raw); isNum {
				samples = append(samples, Sample{Field: f, Value: v, Ts: ts})
			}
		}
	} else {
		for k, raw := range msg.Payload {
			if v, isNum := toNumber(raw); isNum {
				samples = append(samples, Sample{Field: k, Value: v, Ts: ts})
			}
		}
	}

	if len(samples) == 0 {
		msg.SetValue("timeseriesError", "no numeric fields to persist")
		return node.Failure(msg), nil
	}
	if err := h.services.Timeseries.Write(ctx, msg.Meta.TenantID, msg.Meta.Originator, samples); err != nil {
		return nil, fmt.Errorf("write timeseries: %w", err)
	}
	return node.Success(msg), nil
}

// saveToDigitalTwin pushes current values into the asset's digital twin
// state, per component when apply_mapping grouped them. The asset comes from
// the resolved binding; without one the originator is used as the asset ID.
type saveToDigitalTwin struct {
	services Services
	logger   *slog.Logger
}

func newSaveToDigitalTwin(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		return &saveToDigitalTwin{services: services, logger: services.logger()}, nil
	}
}

func (h *saveToDigitalTwin) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if h.services.Twins == nil {
		return nil, fmt.Errorf("no twin writer configured")
	}

	assetID := msg.Meta.Originator
	if binding, ok := bindingFrom(msg); ok && binding.AssetID != "" {
		assetID = binding.AssetID
	}
	if assetID == "" {
		msg.SetValue("twinError", "no asset to update")
		return node.Failure(msg), nil
	}

	if v, ok := msg.Value(ComponentValuesKey); ok {
		if components, isMap := v.(map[string]map[string]any); isMap {
			for component, values := range components {
				target := assetID
				if component != "" {
					target = assetID + "/" + component
				}
				if err := h.services.Twins.UpdateState(ctx, msg.Meta.TenantID, target, values); err != nil {
					return nil, fmt.Errorf("update twin %s: %w", target, err)
				}
			}
			return node.Success(msg), nil
		}
	}

	if err := h.services.Twins.UpdateState(ctx, msg.Meta.TenantID, assetID, msg.Payload); err != nil {
		return nil, fmt.Errorf("update twin %s: %w", assetID, err)
	}
	return node.Success(msg), nil
}
