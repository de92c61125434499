package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump owns the socket's write side. Its exit cancels the connection
// context and closes the socket, which unblocks the read pump.
func (ctl *SignalWSController) writePump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump handles requests strictly in arrival order; it returns when the
// socket fails, the context is canceled or the peer left.
func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn, defaults JoinDefaults) {
	sess := &connState{id: c.id, conn: c, defaults: defaults}
	defer func() {
		ctl.Limiter.Release(sess.userID)
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
		if done := ctl.handleSignal(ctx, sess, data); done {
			return
		}
	}
}

// handleSignal answers one request with exactly one response and reports
// whether the connection should stop reading.
func (ctl *SignalWSController) handleSignal(ctx context.Context, cs *connState, data []byte) bool {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cs.id)).Msg("bad json")
		ctl.respond(ctx, cs, typeInvalid, nil, nil, domain.ErrInvalidInput)
		return false
	}
	h, ok := routes[req.Type]
	if !ok {
		ctl.respond(ctx, cs, req.Type, req.ID, nil, unknownType(req.Type))
		return false
	}
	out, err := h(ctx, ctl, cs, req.Data)
	ctl.respond(ctx, cs, req.Type, req.ID, out, err)
	if req.Type == TypeLeave && err == nil {
		cs.conn.closeSend()
		return true
	}
	return false
}

// requestLabel keeps client-chosen type strings out of metric labels.
func requestLabel(typ string) string {
	if _, ok := routes[typ]; ok || typ == typeInvalid {
		return typ
	}
	return typeUnknown
}

func (ctl *SignalWSController) respond(ctx context.Context, cs *connState, typ string, id json.RawMessage, out any, err error) {
	code := "ok"
	resp := Response{Type: TypeResponse, ID: id, OK: err == nil, Data: out}
	if err != nil {
		c := domain.CodeOf(err)
		code = string(c)
		resp.Data = nil
		resp.Error = &ErrorBody{Code: c, Message: err.Error()}
		ev := log.Warn()
		if c == domain.CodeInternal {
			ev = log.Error()
		}
		ev.Err(err).Str("module", "signal").Str("conn", string(cs.id)).Str("type", typ).Str("code", code).Msg("request failed")
	}
	ctl.Metrics.SignalRequest(requestLabel(typ), code)

	b, mErr := json.Marshal(resp)
	if mErr != nil {
		log.Error().Err(mErr).Str("module", "signal").Str("type", typ).Msg("marshal response")
		b, _ = json.Marshal(Response{Type: TypeResponse, ID: id, Error: &ErrorBody{Code: domain.CodeInternal, Message: "encode response"}})
	}
	if err := cs.conn.Send(ctx, core.Frame(b), ctl.opts.WriteWait); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cs.id)).Str("type", typ).Msg("response not delivered")
	}
}
