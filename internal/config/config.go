package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EngineLoopback  = "loopback"
	EngineMediasoup = "mediasoup"

	EventsNone  = "none"
	EventsRedis = "redis"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Engine    EngineConfig    `mapstructure:"engine"`
	ICE       ICEConfig       `mapstructure:"ice"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type EngineConfig struct {
	Driver      string        `mapstructure:"driver"`
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	AnnouncedIP string        `mapstructure:"announced_ip"`
	RTCMinPort  int           `mapstructure:"rtc_min_port"`
	RTCMaxPort  int           `mapstructure:"rtc_max_port"`
	// Codecs are "kind/mime/clock[/channels]", e.g. "audio/opus/48000/2".
	Codecs []string `mapstructure:"codecs"`
}

type ICEConfig struct {
	STUNURLs   []string      `mapstructure:"stun_urls"`
	TURNURLs   []string      `mapstructure:"turn_urls"`
	TURNSecret string        `mapstructure:"turn_secret"`
	TURNTTL    time.Duration `mapstructure:"turn_ttl"`
}

type EventsConfig struct {
	Driver  string      `mapstructure:"driver"`
	Channel string      `mapstructure:"channel"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type PolicyConfig struct {
	KickSlowPeers bool `mapstructure:"kick_slow_peers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 5000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("engine.driver", EngineLoopback)
	v.SetDefault("engine.url", "")
	v.SetDefault("engine.timeout", "10s")
	v.SetDefault("engine.announced_ip", "127.0.0.1")
	v.SetDefault("engine.rtc_min_port", 40000)
	v.SetDefault("engine.rtc_max_port", 49999)
	v.SetDefault("engine.codecs", []string{"audio/opus/48000/2", "video/VP8/90000", "video/H264/90000"})

	v.SetDefault("ice.stun_urls", []string{})
	v.SetDefault("ice.turn_urls", []string{})
	v.SetDefault("ice.turn_secret", "")
	v.SetDefault("ice.turn_ttl", "24h")

	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("events.channel", "classroom:events")
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)

	v.SetDefault("ratelimit.limit", 5)
	v.SetDefault("ratelimit.interval", "10s")

	v.SetDefault("policy.kick_slow_peers", false)
}

// Load reads the config file, then the environment. An explicit path must
// exist; the per-environment default file is optional.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("CLASSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	switch c.Engine.Driver {
	case EngineLoopback:
	case EngineMediasoup:
		if c.Engine.URL == "" {
			return errors.New("engine.url is required for the mediasoup driver")
		}
	default:
		return errors.Errorf("unknown engine driver %q", c.Engine.Driver)
	}
	if c.Engine.RTCMinPort <= 0 || c.Engine.RTCMaxPort > 65535 || c.Engine.RTCMinPort > c.Engine.RTCMaxPort {
		return errors.Errorf("bad rtc port range %d-%d", c.Engine.RTCMinPort, c.Engine.RTCMaxPort)
	}
	switch c.Events.Driver {
	case EventsNone, "":
	case EventsRedis:
		if c.Events.Redis.Address == "" {
			return errors.New("events.redis.address is required for the redis driver")
		}
	default:
		return errors.Errorf("unknown events driver %q", c.Events.Driver)
	}
	if len(c.ICE.TURNURLs) > 0 && c.ICE.TURNSecret == "" {
		return errors.New("ice.turn_secret is required when turn urls are set")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Interval <= 0 {
		return errors.New("ratelimit.limit and ratelimit.interval must be positive")
	}
	return nil
}
