package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLimiterRefill(t *testing.T) {
	l := NewChatLimiter(2, 10*time.Second)
	require.NotNil(t, l)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Acquire("u1")
	l.Acquire("u2")
	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"), "buckets are per user")

	// one token every 5s
	now = now.Add(5 * time.Second)
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
}

func TestChatLimiterKeepsBucketWhileReferenced(t *testing.T) {
	l := NewChatLimiter(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Acquire("u1")
	l.Acquire("u1")
	assert.Equal(t, 2, l.holders("u1"))
	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))

	l.Release("u1")
	assert.Equal(t, 1, l.holders("u1"))
	assert.False(t, l.Allow("u1"), "one holder left, bucket must stay drained")

	l.Release("u1")
	assert.Equal(t, 0, l.holders("u1"))
	l.Release("u1")
	assert.Equal(t, 0, l.holders("u1"))

	l.Acquire("u1")
	assert.True(t, l.Allow("u1"), "fresh bucket after the last holder left")
}

func TestChatLimiterDisabled(t *testing.T) {
	l := NewChatLimiter(0, time.Minute)
	assert.Nil(t, l)
	l.Acquire("u1")
	assert.True(t, l.Allow("u1"))
	l.Release("u1")
}
