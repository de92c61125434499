package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, int64(65536), cfg.ReadLimit)
	assert.Equal(t, EngineLoopback, cfg.Engine.Driver)
	assert.Equal(t, []string{"audio/opus/48000/2", "video/VP8/90000", "video/H264/90000"}, cfg.Engine.Codecs)
	assert.Equal(t, 24*time.Hour, cfg.ICE.TURNTTL)
	assert.Equal(t, "classroom:events", cfg.Events.Channel)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 7000
engine:
  driver: mediasoup
  url: http://sfu:3000
  timeout: 3s
events:
  driver: redis
  redis:
    address: redis:6379
`), 0o600))
	t.Setenv("CLASSROOM_PORT", "7100")
	t.Setenv("CLASSROOM_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, EngineMediasoup, cfg.Engine.Driver)
	assert.Equal(t, "http://sfu:3000", cfg.Engine.URL)
	assert.Equal(t, 3*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "redis:6379", cfg.Events.Redis.Address)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:      5000,
			Engine:    EngineConfig{Driver: EngineLoopback, RTCMinPort: 40000, RTCMaxPort: 49999},
			Events:    EventsConfig{Driver: EventsNone},
			RateLimit: RateLimitConfig{Limit: 5, Interval: time.Second},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"port", func(c *Config) { c.Port = 0 }, false},
		{"driver", func(c *Config) { c.Engine.Driver = "janus" }, false},
		{"mediasoup without url", func(c *Config) { c.Engine.Driver = EngineMediasoup }, false},
		{"mediasoup", func(c *Config) { c.Engine.Driver = EngineMediasoup; c.Engine.URL = "http://x" }, true},
		{"inverted ports", func(c *Config) { c.Engine.RTCMinPort = 50000 }, false},
		{"events driver", func(c *Config) { c.Events.Driver = "kafka" }, false},
		{"turn without secret", func(c *Config) { c.ICE.TURNURLs = []string{"turn:x"} }, false},
		{"rate limit", func(c *Config) { c.RateLimit.Limit = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
