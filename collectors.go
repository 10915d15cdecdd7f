package ddpush

import (
	"go.uber.org/zap"
)

// Collector refreshes registry entries whose values are computed rather
// than updated by instrumentation. Collectors run once per tick, before any
// pusher reads the registry.
type Collector interface {
	Collect(reg *Registry)
	Name() string
}

// BaseCollector provides basic collector functionality
type BaseCollector struct {
	name   string
	logger *zap.Logger
}

// Name implements Collector interface
func (b *BaseCollector) Name() string {
	return b.name
}

// NewBaseCollector creates a base collector
func NewBaseCollector(name string, logger *zap.Logger) BaseCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return BaseCollector{
		name:   name,
		logger: logger,
	}
}

// setOrRegister stores value in name, registering the metric on first use.
func (b *BaseCollector) setOrRegister(reg *Registry, name string, typ MetricType, value int64) {
	if reg.Set(name, value) {
		return
	}
	if _, err := reg.Register(name, typ); err != nil {
		// lost a registration race, the entry exists now
		b.logger.Debug("collector metric registration", zap.String("metric", name), zap.Error(err))
	}
	reg.Set(name, value)
}

// FuncCollector adapts a function returning named gauge values.
type FuncCollector struct {
	BaseCollector
	fn func() map[string]int64
}

// NewFuncCollector creates a collector that sets one gauge per key returned by fn.
func NewFuncCollector(name string, logger *zap.Logger, fn func() map[string]int64) *FuncCollector {
	return &FuncCollector{
		BaseCollector: NewBaseCollector(name, logger),
		fn:            fn,
	}
}

// Collect implements Collector interface
func (f *FuncCollector) Collect(reg *Registry) {
	for name, value := range f.fn() {
		f.setOrRegister(reg, name, Gauge, value)
	}
}
