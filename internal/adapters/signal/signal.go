package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/app/orch"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// pongWait must exceed the ping period so one late pong does not drop the peer.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

// JoinDefaults are ids remembered from the REST join, used when a join
// request omits them.
type JoinDefaults struct {
	SessionID domain.SessionID
	UserID    domain.UserID
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *ChatLimiter
	Metrics *metrics.Metrics
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *ChatLimiter, m *metrics.Metrics, opts Options) *SignalWSController {
	return &SignalWSController{Orch: o, Limiter: limiter, Metrics: m, opts: opts.withDefaults()}
}

// WsSignalConn is the SignalConnection of one WebSocket.
type WsSignalConn struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrSignalClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Send queues f, waiting up to wait for room. Used for responses, which must
// reach the requester even when notifications are being shed.
func (c *WsSignalConn) Send(ctx context.Context, f core.Frame, wait time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrSignalClosed
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case c.send <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return core.ErrBackpressure
	}
}

// Close stops accepting frames and drops the socket immediately.
func (c *WsSignalConn) Close() {
	if c.closeSend() {
		_ = c.conn.Close()
	}
}

// closeSend stops accepting frames; the write pump drains what is queued,
// sends a close frame and drops the socket.
func (c *WsSignalConn) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until it closes.
// Teardown always runs when the read pump exits.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, defaults JoinDefaults) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   domain.ConnectionID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Open(conn.id, cancel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("open connection")
		cancel()
		_ = ws.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	go ctl.writePump(ctx, cancel, conn)
	go func() {
		ctl.readPump(ctx, conn, defaults)
		conn.Close()
		ctl.Orch.Cleanup(ctx, conn.id)
	}()
}
