package http

import (
	"context"
	"crypto/rand"
	"net/http"

	"github.com/dkeye/classroom/internal/adapters/rtc"
	"github.com/dkeye/classroom/internal/adapters/signal"
	"github.com/dkeye/classroom/internal/app/orch"
	"github.com/dkeye/classroom/internal/config"
	"github.com/dkeye/classroom/internal/logging"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionCookie = "classroomSessions"

// SetupRouter wires the REST API, the signaling upgrade and the static UI.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	} else {
		r.Use(logging.GinMiddleware())
	}
	r.Use(gin.Recovery())

	r.Use(sessions.Sessions(sessionCookie, cookie.NewStore(cookieKey(cfg.Secret))))

	h := &handlers{
		orch: o,
		ice: rtc.ICEConfig{
			STUNURLs:   cfg.ICE.STUNURLs,
			TURNURLs:   cfg.ICE.TURNURLs,
			TURNSecret: cfg.ICE.TURNSecret,
			TURNTTL:    cfg.ICE.TURNTTL,
		},
	}

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/health", h.health)
	r.GET("/router-capabilities", h.routerCapabilities)
	if m != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.POST("/create-session", h.createSession)
	api.POST("/join-session", h.joinSession)
	api.GET("/sessions/:id", h.getSession)
	api.GET("/active-sessions", h.activeSessions)
	api.GET("/get-active-sessions", h.activeSessions)
	api.GET("/router-capabilities", h.routerCapabilities)
	api.GET("/ice-servers", h.iceServers)

	api.GET("/ws/signal", func(c *gin.Context) {
		defaults := rememberedIdentity(c)
		log.Info().Str("module", "adapters.http").Str("session", string(defaults.SessionID)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c, defaults)
	})

	return r
}

// cookieKey falls back to a per-process random key, which invalidates
// cookies on restart.
func cookieKey(secret string) []byte {
	if secret != "" {
		return []byte(secret)
	}
	log.Warn().Str("module", "adapters.http").Msg("no cookie secret configured, using a random one")
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return key
}

func (h *handlers) health(c *gin.Context) {
	online := 0
	for _, r := range h.orch.Rooms.List() {
		online += r.MemberCount
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"sessions":    h.orch.Sessions.Count(),
		"connections": h.orch.Conns.Count(),
		"online":      online,
	})
}
