package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dkeye/classroom/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var s core.EventSink = Nop{}
	assert.NoError(t, s.Publish(context.Background(), core.Event{Type: core.EventUserJoined, SessionID: "s1"}))
	assert.NoError(t, s.Close())
}

func TestEncode(t *testing.T) {
	data, err := encode(core.Event{Type: core.EventLivestreamStopped, SessionID: "s1", UserID: "u1", Reason: core.ReasonDisconnect})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "livestream_stopped", got["type"])
	assert.Equal(t, "s1", got["session_id"])
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, "disconnect", got["reason"])
	assert.NotZero(t, got["timestamp"])
}

func TestRedisSinkUnreachable(t *testing.T) {
	_, err := NewRedisSink(context.Background(), RedisConfig{Address: "127.0.0.1:1"})
	assert.Error(t, err)

	s := NewRedisSinkFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "")
	assert.Equal(t, defaultChannel, s.channel)
	assert.Error(t, s.Publish(context.Background(), core.Event{Type: core.EventUserLeft, SessionID: "s1"}))
	assert.NoError(t, s.Close())
}
