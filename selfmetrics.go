package ddpush

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// selfMetrics records the outcome of every push. A nil *selfMetrics is a no-op.
type selfMetrics struct {
	registry *prometheus.Registry
	pushes   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.GaugeVec
}

func newSelfMetrics() *selfMetrics {
	s := &selfMetrics{
		registry: prometheus.NewRegistry(),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ddpush",
			Name:      "pushes_total",
			Help:      "Export cycles by destination and result.",
		}, []string{"destination", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ddpush",
			Name:      "push_duration_seconds",
			Help:      "Duration of export cycles, encoding and delivery included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"destination"}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ddpush",
			Name:      "payload_bytes",
			Help:      "Size of the last encoded payload.",
		}, []string{"destination"}),
	}
	s.registry.MustRegister(s.pushes, s.duration, s.bytes)
	return s
}

func (s *selfMetrics) observe(dest string, err error, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.pushes.WithLabelValues(dest, resultLabel(err)).Inc()
	s.duration.WithLabelValues(dest).Observe(elapsed.Seconds())
}

func (s *selfMetrics) payload(dest string, n int) {
	if s == nil {
		return
	}
	s.bytes.WithLabelValues(dest).Set(float64(n))
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind.String() + "_error"
	}
	if errors.Is(err, ErrEncode) {
		return "encode_error"
	}
	return "error"
}
