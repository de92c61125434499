package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/dkeye/classroom/internal/adapters/events"
	router "github.com/dkeye/classroom/internal/adapters/http"
	"github.com/dkeye/classroom/internal/adapters/mediasoup"
	"github.com/dkeye/classroom/internal/adapters/rtc"
	wsignal "github.com/dkeye/classroom/internal/adapters/signal"
	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/app/orch"
	"github.com/dkeye/classroom/internal/config"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/logging"
	"github.com/dkeye/classroom/internal/metrics"
)

func main() {
	cliApp := &cli.App{
		Name:  "classroom-server",
		Usage: "live classroom session and signaling coordinator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CLASSROOM_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP listen port, overrides config",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "debug level with console formatted logs",
			},
		},
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.Init(logging.Config{Level: "info", Pretty: c.Bool("dev")})

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.Bool("dev") {
		cfg.Log.Level, cfg.Log.Pretty = "debug", true
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	sink, err := newSink(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Msg("close event sink")
		}
	}()

	m := metrics.New()
	o := orch.New(app.NewSessions(), engine, sink, app.SimplePolicy{Kick: cfg.Policy.KickSlowPeers}, m)
	ctl := wsignal.NewSignalWSController(o, wsignal.NewChatLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval), m, wsignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, o, ctl, m)
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("engine", cfg.Engine.Driver).Str("events", cfg.Events.Driver).Msg("classroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	}

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

func newEngine(cfg config.EngineConfig) (core.MediaEngine, error) {
	codecs, err := rtc.ParseCodecs(cfg.Codecs)
	if err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case config.EngineMediasoup:
		return mediasoup.NewClient(cfg.URL, cfg.Timeout), nil
	default:
		return rtc.NewLoopback(rtc.LoopbackConfig{
			AnnouncedIP: cfg.AnnouncedIP,
			MinPort:     uint16(cfg.RTCMinPort),
			MaxPort:     uint16(cfg.RTCMaxPort),
			Codecs:      codecs,
		})
	}
}

func newSink(ctx context.Context, cfg config.EventsConfig) (core.EventSink, error) {
	if cfg.Driver != config.EventsRedis {
		return events.Nop{}, nil
	}
	return events.NewRedisSink(ctx, events.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Channel,
	})
}
