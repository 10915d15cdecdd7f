package ddpush

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pusher exports a registry to one destination. Each call to Push is an
// independent snapshot, encode and deliver cycle.
type Pusher struct {
	url      string
	redacted string
	reg      *Registry
	encoder  *Encoder
	client   Deliverer
	logger   *zap.Logger
	stats    *selfMetrics

	// held for the duration of a cycle
	cycle sync.Mutex
}

// PusherOption customizes a Pusher
type PusherOption func(*Pusher)

// WithDeliverer replaces the HTTP delivery client
func WithDeliverer(d Deliverer) PusherOption {
	return func(p *Pusher) {
		p.client = d
	}
}

// WithLogger sets the pusher logger
func WithLogger(logger *zap.Logger) PusherOption {
	return func(p *Pusher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func withSelfMetrics(s *selfMetrics) PusherOption {
	return func(p *Pusher) {
		p.stats = s
	}
}

// NewPusher creates a pusher for url reading from reg.
func NewPusher(url string, reg *Registry, encoder *Encoder, timeout time.Duration, insecureSkipVerify bool, opts ...PusherOption) *Pusher {
	p := &Pusher{
		url:      url,
		redacted: redactURL(url),
		reg:      reg,
		encoder:  encoder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewDeliveryClient(timeout, insecureSkipVerify)
	}
	p.logger = p.logger.With(zap.String("destination", p.redacted))
	return p
}

// Destination returns the destination URL with credentials redacted
func (p *Pusher) Destination() string {
	return p.redacted
}

// Push runs one export cycle stamped with now. Failures are logged and
// never returned: metrics export must not affect the host process.
func (p *Pusher) Push(ctx context.Context, now time.Time) {
	if !p.cycle.TryLock() {
		p.logger.Warn("previous push still running, skipping cycle")
		return
	}
	defer p.cycle.Unlock()

	start := time.Now()
	err := p.export(ctx, now)
	p.stats.observe(p.redacted, err, time.Since(start))

	var (
		encErr *EncodeError
		delErr *DeliveryError
	)
	switch {
	case err == nil:
	case errors.As(err, &encErr):
		p.logger.Warn("unable to generate JSON", zap.Error(err))
	case errors.As(err, &delErr) && delErr.Kind == DeliveryStatus:
		p.logger.Warn("HTTP api returned non-200 response code", zap.Int("status", delErr.StatusCode))
	default:
		p.logger.Warn("error sending metrics", zap.Error(err))
	}
}

// export performs the cycle and reports what went wrong.
func (p *Pusher) export(ctx context.Context, now time.Time) error {
	buf := bytes.NewBuffer(make([]byte, 0, os.Getpagesize()))
	if err := p.encoder.EncodeRegistry(buf, p.reg, now); err != nil {
		return err
	}
	p.stats.payload(p.redacted, buf.Len())

	status, err := p.client.Deliver(ctx, p.url, buf.Bytes())
	if err != nil {
		return err
	}
	p.logger.Debug("pushed metrics", zap.Int("status", status), zap.Int("bytes", buf.Len()))
	return nil
}
