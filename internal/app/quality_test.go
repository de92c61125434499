package app

import (
	"testing"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuality(t *testing.T) {
	cases := []struct {
		in    string
		layer int
		rate  uint64
	}{
		{"low", 0, 100_000},
		{"Medium", 1, 300_000},
		{" HIGH ", 2, 900_000},
	}
	for _, c := range cases {
		q, err := ParseQuality(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.layer, q.Layer())
		assert.Equal(t, core.Layers{Spatial: c.layer, Temporal: c.layer}, q.Layers())
		assert.Equal(t, c.rate, q.MaxBitrate())
	}

	_, err := ParseQuality("ultra")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQualitySelectorOwnConsumers(t *testing.T) {
	f := newFixture(t)
	f.join(t, "teacher", f.teacher.ID)
	f.join(t, "alice", f.student.ID)
	_, err := f.conns.AddOwnedProducer("teacher", "p1", domain.KindVideo)
	require.NoError(t, err)
	require.NoError(t, f.conns.AddOwnedConsumer("alice", domain.ConsumerRecord{ID: "k1", ProducerID: "p1"}))

	sel := NewQualitySelector(f.conns)
	got, err := sel.Select("alice", "p1", QualityLow, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConsumerID{"k1"}, got.Consumers)
	assert.Equal(t, core.Layers{}, got.Layers)

	got, err = sel.Select("alice", "other", QualityHigh, "")
	require.NoError(t, err)
	assert.Empty(t, got.Consumers)
}

func TestQualitySelectorForPeer(t *testing.T) {
	f := newFixture(t)
	f.join(t, "teacher", f.teacher.ID)
	f.join(t, "alice", f.student.ID)
	_, err := f.conns.AddOwnedProducer("teacher", "p1", domain.KindVideo)
	require.NoError(t, err)
	require.NoError(t, f.conns.AddOwnedConsumer("alice", domain.ConsumerRecord{ID: "k1", ProducerID: "p1"}))

	sel := NewQualitySelector(f.conns)
	got, err := sel.Select("teacher", "p1", QualityMedium, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConsumerID{"k1"}, got.Consumers)
	assert.Equal(t, 1, got.Layers.Spatial)

	_, err = sel.Select("alice", "p1", QualityMedium, f.teacher.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = sel.Select("ghost", "p1", QualityMedium, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
