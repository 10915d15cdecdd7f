package ddpush

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Manager drives periodic export of one registry to every configured
// destination.
type Manager interface {
	Start() error
	Stop()
	RegisterCollector(collector Collector)
	Registry() *Registry
	Pushers() []*Pusher
	// ForceWrite runs collectors and one export cycle per destination now.
	ForceWrite(ctx context.Context)
	// Gatherer exposes the pusher's own push statistics.
	Gatherer() prometheus.Gatherer
}

// managerImpl is the implementation of Manager
type managerImpl struct {
	config     Config
	export     ExportConfig
	registry   *Registry
	collectors []Collector
	pushers    []*Pusher
	stats      *selfMetrics
	logger     *zap.Logger
	server     *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mutex      sync.RWMutex
	started    bool
}

// NewManager validates config, resolves the canonical hostname once and
// creates one pusher per destination, all reading reg.
func NewManager(config Config, reg *Registry) (Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var canonical string
	if config.CanonicalHostname {
		resolver := NewHostnameResolver(config.DNS, logger)
		canonical = resolver.CanonicalOrEmpty(context.Background(), config.Hostname)
	}
	export := NewExportConfig(config.Prefix, config.Hostname, canonical, config.CanonicalHostname)

	if config.InsecureSkipVerify && len(config.Destinations) > 0 {
		logger.Warn("TLS certificate verification is disabled for metric delivery")
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &managerImpl{
		config:   config,
		export:   export,
		registry: reg,
		stats:    newSelfMetrics(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	encoder := NewEncoder(export, config.MaxPayloadBytes)
	for _, dest := range config.Destinations {
		mgr.pushers = append(mgr.pushers, NewPusher(dest, reg, encoder,
			config.SocketTimeout, config.InsecureSkipVerify,
			WithLogger(logger), withSelfMetrics(mgr.stats)))
	}

	if config.SystemMetrics {
		mgr.collectors = append(mgr.collectors, NewSystemMetricsCollector(logger))
	}
	return mgr, nil
}

// RegisterCollector implements Manager interface
func (m *managerImpl) RegisterCollector(collector Collector) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.collectors = append(m.collectors, collector)

	m.logger.Debug("Registered metrics collector",
		zap.String("collector", collector.Name()))
}

// Registry implements Manager interface
func (m *managerImpl) Registry() *Registry {
	return m.registry
}

// Pushers implements Manager interface
func (m *managerImpl) Pushers() []*Pusher {
	return m.pushers
}

// Gatherer implements Manager interface
func (m *managerImpl) Gatherer() prometheus.Gatherer {
	return m.stats.registry
}

// Start implements Manager interface
func (m *managerImpl) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.started {
		return errors.New("manager already started")
	}

	if m.config.MetricsListen != "" {
		ln, err := net.Listen("tcp", m.config.MetricsListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", m.config.MetricsListen, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.stats.registry, promhttp.HandlerOpts{}))
		m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("self metrics server failed", zap.Error(err))
			}
		}()
	}
	m.started = true

	if len(m.pushers) == 0 {
		m.logger.Warn("Starting metrics manager without destinations")
		return nil
	}

	// Periodic push loop
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				m.tick(m.ctx, now)
			case <-m.ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("metrics pusher started",
		zap.Int("destinations", len(m.pushers)),
		zap.Duration("interval", m.config.Interval),
		zap.String("host", m.export.HostTag()))
	return nil
}

// Stop implements Manager interface
func (m *managerImpl) Stop() {
	m.cancel()
	m.mutex.RLock()
	server := m.server
	m.mutex.RUnlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.SocketTimeout)
		_ = server.Shutdown(ctx)
		cancel()
	}
	m.wg.Wait()

	for _, p := range m.pushers {
		if c, ok := p.client.(*DeliveryClient); ok {
			c.CloseIdleConnections()
		}
	}
}

// ForceWrite implements Manager interface
func (m *managerImpl) ForceWrite(ctx context.Context) {
	m.tick(ctx, time.Now())
}

// tick refreshes collectors, then pushes to every destination concurrently.
func (m *managerImpl) tick(ctx context.Context, now time.Time) {
	m.mutex.RLock()
	collectors := append([]Collector(nil), m.collectors...)
	m.mutex.RUnlock()

	for _, c := range collectors {
		c.Collect(m.registry)
	}

	var wg sync.WaitGroup
	for _, p := range m.pushers {
		wg.Add(1)
		go func(p *Pusher) {
			defer wg.Done()
			p.Push(ctx, now)
		}(p)
	}
	wg.Wait()
}
