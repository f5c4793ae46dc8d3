// Package builtin provides the stock node catalog: input, filter,
// enrichment, transformation, action, external, and flow nodes. Handlers
// reach the platform through the narrow collaborator interfaces in Services
// so the engine never depends on concrete storage or delivery systems.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/message"
)

// FieldMap maps one raw data source field onto an asset field, with optional
// linear conversion and the asset component the value belongs to.
type FieldMap struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Scale     float64 `json:"scale,omitempty"`  // 0 means 1
	Offset    float64 `json:"offset,omitempty"`
	Component string  `json:"component,omitempty"`
}

// Binding connects a data source (the message originator) to an asset and
// carries the field mapping used to translate raw telemetry.
type Binding struct {
	ID           string     `json:"id"`
	DataSourceID string     `json:"dataSourceId"`
	AssetID      string     `json:"assetId"`
	Mapping      []FieldMap `json:"mapping,omitempty"`
}

// BindingResolver looks up the binding for a message originator. A nil
// binding with nil error means no binding exists.
type BindingResolver interface {
	Resolve(ctx context.Context, tenantID, originator string) (*Binding, error)
}

// AttributeStore serves server-side attributes for enrichment nodes. An
// empty keys slice fetches everything.
type AttributeStore interface {
	OriginatorAttributes(ctx context.Context, tenantID, originator string, keys []string) (map[string]any, error)
	TenantAttributes(ctx context.Context, tenantID string, keys []string) (map[string]any, error)
}

// Alarm is one alert raised by a create_alarm node.
type Alarm struct {
	TenantID   string         `json:"tenantId"`
	Originator string         `json:"originator"`
	AssetID    string         `json:"assetId,omitempty"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	RaisedAt   time.Time      `json:"raisedAt"`
}

// AlarmSink delivers raised alarms.
type AlarmSink interface {
	Raise(ctx context.Context, alarm Alarm) error
}

// Sample is one time-series point.
type Sample struct {
	Field string    `json:"field"`
	Value float64   `json:"value"`
	Ts    time.Time `json:"ts"`
}

// TimeseriesWriter persists telemetry samples.
type TimeseriesWriter interface {
	Write(ctx context.Context, tenantID, originator string, samples []Sample) error
}

// TwinWriter updates the digital twin state of an asset.
type TwinWriter interface {
	UpdateState(ctx context.Context, tenantID, assetID string, values map[string]any) error
}

// ChainInvoker runs another chain synchronously within the caller's
// execution. The engine implements this; the indirection keeps builtin free
// of an engine dependency.
type ChainInvoker interface {
	Invoke(ctx context.Context, chainID string, msg *message.Message) (*message.Message, error)
}

// InvokerHolder is a ChainInvoker wired after registration. The engine is
// built over the registry, so it cannot exist yet when the catalog registers;
// the holder goes into Services first and receives the engine once it does.
type InvokerHolder struct {
	mu    sync.RWMutex
	inner ChainInvoker
}

// Set installs the real invoker.
func (h *InvokerHolder) Set(inv ChainInvoker) {
	h.mu.Lock()
	h.inner = inv
	h.mu.Unlock()
}

func (h *InvokerHolder) Invoke(ctx context.Context, chainID string, msg *message.Message) (*message.Message, error) {
	h.mu.RLock()
	inner := h.inner
	h.mu.RUnlock()
	if inner == nil {
		return nil, fmt.Errorf("chain invoker not wired yet")
	}
	return inner.Invoke(ctx, chainID, msg)
}

// Services bundles every collaborator the catalog needs. Nil fields are
// tolerated: nodes needing a missing service fault at execution time with a
// clear error instead of failing registration.
type Services struct {
	Bindings   BindingResolver
	Attributes AttributeStore
	Alarms     AlarmSink
	Timeseries TimeseriesWriter
	Twins      TwinWriter
	Chains     ChainInvoker
	Logger     *slog.Logger
	HTTPClient *http.Client
}

func (s Services) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Services) httpClient(timeout time.Duration) *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: timeout}
}
