package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/classroom/internal/core"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultChannel = "classroom:events"

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisSink publishes lifecycle events as JSON on a pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

var _ core.EventSink = (*RedisSink)(nil)

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Address)
	}
	return NewRedisSinkFromClient(client, cfg.Channel), nil
}

func NewRedisSinkFromClient(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = defaultChannel
	}
	log.Info().Str("module", "events").Str("channel", channel).Msg("redis event sink ready")
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, ev core.Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return errors.Wrapf(err, "publish %s", ev.Type)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func encode(ev core.Event) ([]byte, error) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return data, nil
}
