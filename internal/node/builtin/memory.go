package builtin

import (
	"context"
	"sync"
)

// In-memory collaborator implementations. The serve command uses them when
// no external platform is wired, and tests use them as recording fakes.

// MemoryBindings is a map-backed BindingResolver keyed by tenant and
// originator.
type MemoryBindings struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
}

// NewMemoryBindings creates an empty resolver.
func NewMemoryBindings() *MemoryBindings {
	return &MemoryBindings{bindings: make(map[string]*Binding)}
}

// Put registers a binding for an originator.
func (m *MemoryBindings) Put(tenantID, originator string, binding *Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[tenantID+"\x00"+originator] = binding
}

// Resolve implements BindingResolver.
func (m *MemoryBindings) Resolve(ctx context.Context, tenantID, originator string) (*Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bindings[tenantID+"\x00"+originator], nil
}

// MemoryAttributes is a map-backed AttributeStore.
type MemoryAttributes struct {
	mu         sync.RWMutex
	originator map[string]map[string]any
	tenant     map[string]map[string]any
}

// NewMemoryAttributes creates an empty store.
func NewMemoryAttributes() *MemoryAttributes {
	return &MemoryAttributes{
		originator: make(map[string]map[string]any),
		tenant:     make(map[string]map[string]any),
	}
}

// PutOriginator sets one originator attribute.
func (m *MemoryAttributes) PutOriginator(tenantID, originator, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantID + "\x00" + originator
	if m.originator[k] == nil {
		m.originator[k] = make(map[string]any)
	}
	m.originator[k][key] = value
}

// PutTenant sets one tenant attribute.
func (m *MemoryAttributes) PutTenant(tenantID, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tenant[tenantID] == nil {
		m.tenant[tenantID] = make(map[string]any)
	}
	m.tenant[tenantID][key] = value
}

// OriginatorAttributes implements AttributeStore.
func (m *MemoryAttributes) OriginatorAttributes(ctx context.Context, tenantID, originator string, keys []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterKeys(m.originator[tenantID+"\x00"+originator], keys), nil
}

// TenantAttributes implements AttributeStore.
func (m *MemoryAttributes) TenantAttributes(ctx context.Context, tenantID string, keys []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterKeys(m.tenant[tenantID], keys), nil
}

func filterKeys(attrs map[string]any, keys []string) map[string]any {
	out := make(map[string]any)
	if attrs == nil {
		return out
	}
	if len(keys) == 0 {
		for k, v := range attrs {
			out[k] = v
		}
		return out
	}
	for _, k := range keys {
		if v, ok := attrs[k]; ok {
			out[k] = v
		}
	}
	return out
}

// MemoryAlarms records raised alarms.
type MemoryAlarms struct {
	mu     sync.Mutex
	alarms []Alarm
}

// NewMemoryAlarms creates an empty sink.
func NewMemoryAlarms() *MemoryAlarms {
	return &MemoryAlarms{}
}

// Raise implements AlarmSink.
func (m *MemoryAlarms) Raise(ctx context.Context, alarm Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms = append(m.alarms, alarm)
	return nil
}

// Raised returns a copy of every alarm raised so far.
func (m *MemoryAlarms) Raised() []Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alarm(nil), m.alarms...)
}

// MemoryTimeseries records written samples per tenant and originator.
type MemoryTimeseries struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

// NewMemoryTimeseries creates an empty writer.
func NewMemoryTimeseries() *MemoryTimeseries {
	return &MemoryTimeseries{samples: make(map[string][]Sample)}
}

// Write implements TimeseriesWriter.
func (m *MemoryTimeseries) Write(ctx context.Context, tenantID, originator string, samples []Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantID + "\x00" + originator
	m.samples[k] = append(m.samples[k], samples...)
	return nil
}

// Samples returns the samples written for one originator.
func (m *MemoryTimeseries) Samples(tenantID, originator string) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples[tenantID+"\x00"+originator]...)
}

// MemoryTwins keeps the latest state values per asset.
type MemoryTwins struct {
	mu    sync.Mutex
	state map[string]map[string]any
}

// NewMemoryTwins creates an empty writer.
func NewMemoryTwins() *MemoryTwins {
	return &MemoryTwins{state: make(map[string]map[string]any)}
}

// UpdateState implements TwinWriter.
func (m *MemoryTwins) UpdateState(ctx context.Context, tenantID, assetID string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantID + "\x00" + assetID
	if m.state[k] == nil {
		m.state[k] = make(map[string]any)
	}
	for key, v := range values {
		m.state[k][key] = v
	}
	return nil
}

// State returns the current twin state of an asset.
func (m *MemoryTwins) State(tenantID, assetID string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any)
	for k, v := range m.state[tenantID+"\x00"+assetID] {
		out[k] = v
	}
	return out
}

// MemoryServices wires every in-memory collaborator into a Services bundle.
func MemoryServices() (Services, *MemoryBindings, *MemoryAlarms, *MemoryTimeseries, *MemoryTwins) {
	bindings := NewMemoryBindings()
	alarms := NewMemoryAlarms()
	timeseries := NewMemoryTimeseries()
	twins := NewMemoryTwins()
	services := Services{
		Bindings:   bindings,
		Attributes: NewMemoryAttributes(),
		Alarms:     alarms,
		Timeseries: timeseries,
		Twins:      twins,
	}
	return services, bindings, alarms, timeseries, twins
}
