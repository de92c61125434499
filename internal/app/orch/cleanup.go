package orch

import (
	"context"

	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const cleanupWorkers = 8

// Cleanup tears a connection down in any state. Only the first call for a
// connection does anything. Every step is best-effort: failures are logged and
// counted, and the remaining steps still run.
func (o *Orchestrator) Cleanup(ctx context.Context, cid domain.ConnectionID) {
	snap, ok := o.Conns.BeginTeardown(cid)
	if !ok {
		return
	}
	timeout := o.CleanupTimeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	// the channel that triggered us is usually already canceled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if snap.Bound {
		if room, ok := o.Rooms.Get(snap.SessionID); ok {
			room.RemoveMember(cid)
		}
	}

	o.closeMedia(ctx, snap)

	o.Conns.Forget(cid)
	o.Metrics.ConnectionClosed()

	if !snap.Bound {
		log.Info().Str("module", "orch").Str("conn", string(cid)).Msg("cleaned up unjoined connection")
		return
	}
	uid := snap.UserID()
	left := o.Sessions.Detach(snap.SessionID, uid)
	if left.StoppedSharing {
		o.broadcast(snap.SessionID, cid, core.NotifyScreenShareStopped, ScreenShare{UserID: uid})
	}
	if left.Remaining > 0 {
		// the user is still online through another connection
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(snap.SessionID)).Str("user", string(uid)).
			Int("remaining", left.Remaining).Msg("cleaned up connection")
		return
	}
	if snap.Member.IsTeacher() {
		if changed, _ := o.Sessions.SetLive(snap.SessionID, false); changed {
			o.publish(ctx, core.EventLivestreamStopped, snap.SessionID, uid, core.ReasonDisconnect)
		}
	}
	o.broadcast(snap.SessionID, cid, core.NotifyUserLeft, UserLeft{UserID: uid})
	o.publish(ctx, core.EventUserLeft, snap.SessionID, uid, "")
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(snap.SessionID)).Str("user", string(uid)).
		Int("producers", len(snap.Producers)).Int("consumers", len(snap.Consumers)).Msg("cleaned up connection")
}

// closeMedia releases producers and consumers first, then the transports
// that carried them.
func (o *Orchestrator) closeMedia(ctx context.Context, snap app.ConnSnapshot) {
	p := pool.New().WithErrors().WithMaxGoroutines(cleanupWorkers)
	for _, rec := range snap.Producers {
		p.Go(func() error {
			err := o.Engine.Close(ctx, core.ProducerHandle(rec.ID))
			o.Metrics.ProducerRemoved(string(rec.Kind))
			o.dropDependents(ctx, snap.SessionID, rec.ID)
			o.broadcast(snap.SessionID, snap.ConnectionID, core.NotifyProducerClosed, ProducerClosed{ProducerID: rec.ID})
			return errors.Wrapf(err, "close producer %s", rec.ID)
		})
	}
	for _, rec := range snap.Consumers {
		p.Go(func() error {
			return errors.Wrapf(o.Engine.Close(ctx, core.ConsumerHandle(rec.ID)), "close consumer %s", rec.ID)
		})
	}
	o.Metrics.ConsumersRemoved(len(snap.Consumers))
	o.logCleanup(snap, p.Wait())

	t := pool.New().WithErrors().WithMaxGoroutines(cleanupWorkers)
	for _, id := range snap.Transports() {
		t.Go(func() error {
			return errors.Wrapf(o.Engine.Close(ctx, core.TransportHandle(id)), "close transport %s", id)
		})
	}
	o.logCleanup(snap, t.Wait())
}

func (o *Orchestrator) logCleanup(snap app.ConnSnapshot, err error) {
	if err == nil {
		return
	}
	// pool joins the failures; count each one
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for range joined.Unwrap() {
			o.Metrics.CleanupFailure()
		}
	} else {
		o.Metrics.CleanupFailure()
	}
	log.Error().Err(err).Str("module", "orch").Str("conn", string(snap.ConnectionID)).Str("session", string(snap.SessionID)).Msg("cleanup incomplete")
}
