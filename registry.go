package ddpush

import (
	"fmt"
	"sync"
)

// MetricType represents the type of a metric
type MetricType int

const (
	Gauge MetricType = iota
	Counter
)

// String returns the wire name of the metric type
func (t MetricType) String() string {
	if t == Gauge {
		return "gauge"
	}
	return "counter"
}

// Metric is a single registry entry. The exported fields are fixed at
// registration; the value is only read or written while holding the owning
// registry's lock.
type Metric struct {
	Name           string
	Type           MetricType
	InitialValue   int64
	ResetAfterPush bool

	value int64
}

// Sample is a point-in-time copy of a registry entry taken by the accessor.
type Sample struct {
	Name           string
	Value          int64
	Type           MetricType
	ResetAfterPush bool
	InitialValue   int64
}

// MetricOption configures a metric at registration time
type MetricOption func(*Metric)

// WithInitialValue sets the starting value, which is also the reset target.
func WithInitialValue(v int64) MetricOption {
	return func(m *Metric) {
		m.InitialValue = v
	}
}

// WithResetAfterPush makes every export restore the metric to its initial value.
func WithResetAfterPush() MetricOption {
	return func(m *Metric) {
		m.ResetAfterPush = true
	}
}

// Registry is an insertion-ordered table of metrics guarded by a single
// reader/writer lock shared by every entry.
type Registry struct {
	mutex   sync.RWMutex
	metrics []*Metric
	index   map[string]*Metric
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]*Metric),
	}
}

// Register adds a metric. Names must be unique.
func (r *Registry) Register(name string, typ MetricType, opts ...MetricOption) (*Metric, error) {
	if name == "" {
		return nil, fmt.Errorf("metric name cannot be empty")
	}

	m := &Metric{Name: name, Type: typ}
	for _, opt := range opts {
		opt(m)
	}
	m.value = m.InitialValue

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.index[name]; exists {
		return nil, fmt.Errorf("metric %q already registered", name)
	}
	r.index[name] = m
	r.metrics = append(r.metrics, m)
	return m, nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(name string, typ MetricType, opts ...MetricOption) *Metric {
	m, err := r.Register(name, typ, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the metric registered under name
func (r *Registry) Lookup(name string) (*Metric, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, ok := r.index[name]
	return m, ok
}

// Len returns the number of registered metrics
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.metrics)
}

// Add adds delta to the named metric. It reports false for unknown names.
func (r *Registry) Add(name string, delta int64) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.index[name]
	if !ok {
		return false
	}
	m.value += delta
	return true
}

// Inc increments the named metric by 1
func (r *Registry) Inc(name string) bool {
	return r.Add(name, 1)
}

// Set stores value in the named metric
func (r *Registry) Set(name string, value int64) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.index[name]
	if !ok {
		return false
	}
	m.value = value
	return true
}

// Get returns the current value of the named metric
func (r *Registry) Get(name string) (int64, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.index[name]
	if !ok {
		return 0, false
	}
	return m.value, true
}

// entries returns the current entry list. The list is append-only so the
// returned slice header stays valid after the lock is released.
func (r *Registry) entries() []*Metric {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.metrics[:len(r.metrics):len(r.metrics)]
}

// Walk visits every entry in insertion order. Each value is loaded under the
// shared lock; entries flagged ResetAfterPush are then restored to their
// initial value under the exclusive lock, after the value has been captured.
// The two locks are never held together and never across fn. Walk stops at
// the first error returned by fn.
func (r *Registry) Walk(fn func(s Sample, last bool) error) error {
	list := r.entries()
	for i, m := range list {
		r.mutex.RLock()
		value := m.value
		r.mutex.RUnlock()

		if m.ResetAfterPush {
			r.mutex.Lock()
			m.value = m.InitialValue
			r.mutex.Unlock()
		}

		s := Sample{
			Name:           m.Name,
			Value:          value,
			Type:           m.Type,
			ResetAfterPush: m.ResetAfterPush,
			InitialValue:   m.InitialValue,
		}
		if err := fn(s, i == len(list)-1); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotAndMaybeReset returns every entry as a Sample in insertion order,
// applying the reset side effect of Walk.
func (r *Registry) SnapshotAndMaybeReset() []Sample {
	samples := make([]Sample, 0, r.Len())
	_ = r.Walk(func(s Sample, _ bool) error {
		samples = append(samples, s)
		return nil
	})
	return samples
}
