// Package metrics exposes coordinator counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "classroom"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	sessionsTotal      prometheus.Counter
	connectionsCurrent prometheus.Gauge
	producersCurrent   *prometheus.GaugeVec
	consumersCurrent   prometheus.Gauge
	signalRequests     *prometheus.CounterVec
	cleanupFailures    prometheus.Counter
	droppedFrames      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions created since start.",
		}),
		connectionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_current",
			Help:      "Open signaling connections.",
		}),
		producersCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "producers_current",
			Help:      "Live producers by media kind.",
		}, []string{"kind"}),
		consumersCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers_current",
			Help:      "Live consumers.",
		}),
		signalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_requests_total",
			Help:      "Signaling requests by type and result code.",
		}, []string{"type", "code"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Media engine close calls that failed during teardown.",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Notifications dropped because a peer queue was full.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsTotal,
		m.connectionsCurrent,
		m.producersCurrent,
		m.consumersCurrent,
		m.signalRequests,
		m.cleanupFailures,
		m.droppedFrames,
	)
	return m
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsCurrent.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsCurrent.Dec()
}

func (m *Metrics) ProducerAdded(kind string) {
	if m == nil {
		return
	}
	m.producersCurrent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProducerRemoved(kind string) {
	if m == nil {
		return
	}
	m.producersCurrent.WithLabelValues(kind).Dec()
}

func (m *Metrics) ConsumerAdded() {
	if m == nil {
		return
	}
	m.consumersCurrent.Inc()
}

func (m *Metrics) ConsumersRemoved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.consumersCurrent.Sub(float64(n))
}

func (m *Metrics) SignalRequest(typ, code string) {
	if m == nil {
		return
	}
	m.signalRequests.WithLabelValues(typ, code).Inc()
}

func (m *Metrics) CleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.droppedFrames.Inc()
}
