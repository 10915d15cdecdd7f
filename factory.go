package ddpush

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Global pusher instance
var (
	defaultRegistry = NewRegistry()
	globalManager   Manager
	globalMutex     sync.Mutex
)

// DefaultRegistry returns the process-wide registry used by the package
// level helpers.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Init starts pushing the default registry to the configured destinations.
func Init(config Config) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager != nil {
		return fmt.Errorf("pusher system already initialized")
	}

	mgr, err := NewManager(config, defaultRegistry)
	if err != nil {
		return err
	}
	if err := mgr.Start(); err != nil {
		return err
	}
	globalManager = mgr

	if config.Logger != nil {
		config.Logger.Info("pusher system initialized",
			zap.Int("destinations", len(config.Destinations)),
			zap.String("prefix", config.Prefix))
	}
	return nil
}

// Shutdown stops the global pusher system. The default registry keeps its values.
func Shutdown() {
	globalMutex.Lock()
	mgr := globalManager
	globalManager = nil
	globalMutex.Unlock()

	if mgr != nil {
		mgr.Stop()
	}
}

// Metric registration

// RegisterGauge registers a gauge in the default registry
func RegisterGauge(name string, opts ...MetricOption) error {
	_, err := defaultRegistry.Register(name, Gauge, opts...)
	return err
}

// RegisterCounter registers a counter in the default registry
func RegisterCounter(name string, opts ...MetricOption) error {
	_, err := defaultRegistry.Register(name, Counter, opts...)
	return err
}

// Value functions

// IncrementCounter increments a metric by 1
func IncrementCounter(name string) {
	defaultRegistry.Inc(name)
}

// DecrementCounter decrements a metric by 1
func DecrementCounter(name string) {
	defaultRegistry.Add(name, -1)
}

// AddCounter adds a specific value to a metric
func AddCounter(name string, delta int64) {
	defaultRegistry.Add(name, delta)
}

// SetGauge sets a metric to a specific value
func SetGauge(name string, value int64) {
	defaultRegistry.Set(name, value)
}

// GetValue gets the current value of a metric, 0 if it is not registered
func GetValue(name string) int64 {
	v, _ := defaultRegistry.Get(name)
	return v
}

// Collector registration

// RegisterCollector registers a custom collector with the global pusher
func RegisterCollector(collector Collector) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalManager == nil {
		return fmt.Errorf("pusher system is not initialized")
	}

	globalManager.RegisterCollector(collector)
	return nil
}

// RegisterSystemMetricsCollector registers the system metrics collector with the global pusher
func RegisterSystemMetricsCollector(logger *zap.Logger) error {
	return RegisterCollector(NewSystemMetricsCollector(logger))
}

// ForceWrite immediately runs one export cycle per destination
func ForceWrite(ctx context.Context) error {
	globalMutex.Lock()
	mgr := globalManager
	globalMutex.Unlock()
	if mgr == nil {
		return fmt.Errorf("pusher system not initialized")
	}

	mgr.ForceWrite(ctx)
	return nil
}
