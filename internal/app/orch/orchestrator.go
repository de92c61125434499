// Package orch drives signaling requests against the session and connection
// tables and the media engine, and tears connections down.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/rs/zerolog/log"
)

const defaultCleanupTimeout = 10 * time.Second

type Orchestrator struct {
	Sessions *app.Sessions
	Conns    *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Quality  *app.QualitySelector
	Engine   core.MediaEngine
	Events   core.EventSink
	Metrics  *metrics.Metrics

	CleanupTimeout time.Duration
}

// New wires the tables around the session registry.
func New(sessions *app.Sessions, engine core.MediaEngine, events core.EventSink, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	conns := app.NewRegistry(sessions)
	return &Orchestrator{
		Sessions:       sessions,
		Conns:          conns,
		Rooms:          app.NewRoomManager(),
		Policy:         policy,
		Quality:        app.NewQualitySelector(conns),
		Engine:         engine,
		Events:         events,
		Metrics:        m,
		CleanupTimeout: defaultCleanupTimeout,
	}
}

// broadcast fans a notification out to the session, skipping from.
// Delivery is fire-and-forget; full peer queues go through the policy.
func (o *Orchestrator) broadcast(sid domain.SessionID, from domain.ConnectionID, typ string, data any) {
	room, ok := o.Rooms.Get(sid)
	if !ok {
		return
	}
	frame, err := core.EncodeNotification(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode notification")
		return
	}
	res := room.Broadcast(from, frame)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		action := o.Policy.OnBackPressure(room, slow)
		log.Warn().Str("module", "orch").Str("session", string(sid)).Str("conn", string(slow.ConnectionID())).
			Str("type", typ).Stringer("action", action).Msg("peer queue full")
		switch action {
		case app.KickMember:
			o.Conns.Cancel(slow.ConnectionID())
		case app.DropFrame:
			o.Metrics.FrameDropped()
		case app.NoAction:
		}
	}
}

// publish hands a lifecycle event to the external sink. Failures are logged only.
func (o *Orchestrator) publish(ctx context.Context, typ string, sid domain.SessionID, uid domain.UserID, reason string) {
	if o.Events == nil {
		return
	}
	ev := core.Event{Type: typ, SessionID: sid, UserID: uid, Reason: reason, Timestamp: time.Now().Unix()}
	if err := o.Events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("event", typ).Str("session", string(sid)).Msg("publish event failed")
	}
}
