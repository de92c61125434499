package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := New()
	m.SessionCreated()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ProducerAdded("video")
	m.ProducerAdded("audio")
	m.ProducerRemoved("video")
	m.ConsumerAdded()
	m.ConsumerAdded()
	m.ConsumersRemoved(2)
	m.SignalRequest("join", "ok")
	m.CleanupFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsCurrent))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.producersCurrent.WithLabelValues("video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.producersCurrent.WithLabelValues("audio")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.consumersCurrent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalRequests.WithLabelValues("join", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionCreated()
		m.ProducerAdded("video")
		m.ConsumersRemoved(3)
		m.SignalRequest("x", "y")
		m.FrameDropped()
	})
}
