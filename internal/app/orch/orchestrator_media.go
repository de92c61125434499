package orch

import (
	"context"

	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Media requests follow one pattern: check preconditions under the table
// locks, call the engine with no lock held, then commit. A failed engine call
// commits nothing; a failed commit releases what the engine just created.

type ProduceRequest struct {
	TransportID   domain.TransportID
	Kind          string
	RTPParameters core.RTPParameters
	SessionID     domain.SessionID
	UserID        domain.UserID
}

type ConsumeRequest struct {
	TransportID  domain.TransportID
	ProducerID   domain.ProducerID
	Capabilities core.RTPCapabilities
}

type QualityRequest struct {
	ProducerID domain.ProducerID
	Quality    string
	UserID     domain.UserID
}

type QualityResult struct {
	Quality    app.Quality `json:"quality"`
	Layers     core.Layers `json:"layers"`
	MaxBitrate uint64      `json:"maxBitrate"`
	Applied    int         `json:"applied"`
}

func (o *Orchestrator) RouterCapabilities(ctx context.Context) (core.RTPCapabilities, error) {
	caps, err := o.Engine.Capabilities(ctx)
	if err != nil {
		return core.RTPCapabilities{}, domain.EngineFailure(err)
	}
	return caps, nil
}

// release closes an engine resource that never made it into the tables.
func (o *Orchestrator) release(ctx context.Context, h core.Handle) {
	if err := o.Engine.Close(ctx, h); err != nil {
		o.Metrics.CleanupFailure()
		log.Error().Err(err).Str("module", "orch").Str("handle", string(h.Type)).Str("id", h.ID).Msg("release uncommitted resource")
	}
}

func (o *Orchestrator) CreateTransport(ctx context.Context, cid domain.ConnectionID, dir core.Direction) (*core.Transport, error) {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return nil, err
	}
	has, err := o.Conns.HasTransport(cid, dir)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, errors.Wrapf(domain.ErrAlreadyExists, "%s transport", dir)
	}

	t, err := o.Engine.CreateTransport(ctx, core.TransportOptions{Direction: dir, SessionID: b.SessionID, ConnectionID: cid})
	if err != nil {
		return nil, domain.EngineFailure(err)
	}

	if err := o.Conns.SetTransport(cid, dir, t.ID); err != nil {
		o.release(ctx, core.TransportHandle(t.ID))
		return nil, err
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("transport", string(t.ID)).Str("direction", string(dir)).Msg("transport created")
	return t, nil
}

// ConnectTransport forwards DTLS parameters. Repeat calls are not deduplicated.
func (o *Orchestrator) ConnectTransport(ctx context.Context, cid domain.ConnectionID, tid domain.TransportID, dtls core.DTLSParameters) error {
	if tid == "" {
		return errors.Wrap(domain.ErrInvalidInput, "transportId is required")
	}
	if len(dtls.Fingerprints) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "dtlsParameters.fingerprints is required")
	}
	if _, err := o.Conns.OwnsTransport(cid, tid); err != nil {
		return err
	}
	if err := o.Engine.ConnectTransport(ctx, tid, dtls); err != nil {
		return domain.EngineFailure(err)
	}
	return nil
}

func (o *Orchestrator) Produce(ctx context.Context, cid domain.ConnectionID, req ProduceRequest) (domain.ProducerID, error) {
	kind, err := domain.ParseMediaKind(req.Kind)
	if err != nil {
		return "", err
	}
	if len(req.RTPParameters.Codecs) == 0 {
		return "", errors.Wrap(domain.ErrInvalidInput, "rtpParameters.codecs is required")
	}
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return "", err
	}
	if (req.SessionID != "" && req.SessionID != b.SessionID) || (req.UserID != "" && req.UserID != b.Member.User.ID) {
		return "", errors.Wrap(domain.ErrInvalidInput, "request does not match the joined session")
	}
	tid, err := o.Conns.Transport(cid, core.DirectionSend)
	if err != nil {
		return "", err
	}
	if req.TransportID != "" && req.TransportID != tid {
		return "", errors.Wrapf(domain.ErrNotFound, "producer transport %s", req.TransportID)
	}

	pid, err := o.Engine.Produce(ctx, tid, kind, req.RTPParameters)
	if err != nil {
		return "", domain.EngineFailure(err)
	}

	if _, err := o.Conns.AddOwnedProducer(cid, pid, kind); err != nil {
		o.release(ctx, core.ProducerHandle(pid))
		return "", err
	}
	o.Metrics.ProducerAdded(string(kind))
	o.broadcast(b.SessionID, cid, core.NotifyNewProducer, domain.ProducerInfo{ID: pid, Kind: kind, UserID: b.Member.User.ID})
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(b.SessionID)).Str("producer", string(pid)).Str("kind", string(kind)).Msg("producer created")
	return pid, nil
}

// Consume only ever reaches producers of the caller's own session.
func (o *Orchestrator) Consume(ctx context.Context, cid domain.ConnectionID, req ConsumeRequest) (*core.Consumer, error) {
	if req.ProducerID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "producerId is required")
	}
	if len(req.Capabilities.Codecs) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "rtpCapabilities.codecs is required")
	}
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return nil, err
	}
	tid, err := o.Conns.Transport(cid, core.DirectionRecv)
	if err != nil {
		return nil, err
	}
	if req.TransportID != "" && req.TransportID != tid {
		return nil, errors.Wrapf(domain.ErrNotFound, "consumer transport %s", req.TransportID)
	}
	if _, err := o.Sessions.Producer(b.SessionID, req.ProducerID); err != nil {
		return nil, err
	}

	c, err := o.Engine.Consume(ctx, tid, req.ProducerID, req.Capabilities)
	if err != nil {
		return nil, domain.EngineFailure(err)
	}

	rec := domain.ConsumerRecord{ID: c.ID, Kind: c.Kind, ProducerID: req.ProducerID}
	if err := o.Conns.AddOwnedConsumer(cid, rec); err != nil {
		o.release(ctx, core.ConsumerHandle(c.ID))
		return nil, err
	}
	o.Metrics.ConsumerAdded()
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("producer", string(req.ProducerID)).Str("consumer", string(c.ID)).Msg("consumer created")
	return c, nil
}

// CloseProducer closes one of the caller's producers and drops every consumer
// in the session that tracked it.
func (o *Orchestrator) CloseProducer(ctx context.Context, cid domain.ConnectionID, pid domain.ProducerID) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	if !o.Conns.OwnsProducer(cid, pid) {
		return errors.Wrapf(domain.ErrNotFound, "producer %s", pid)
	}
	if err := o.Engine.Close(ctx, core.ProducerHandle(pid)); err != nil {
		return domain.EngineFailure(err)
	}
	rec, ok := o.Conns.RemoveOwnedProducer(cid, pid)
	if !ok {
		return nil
	}
	o.Metrics.ProducerRemoved(string(rec.Kind))
	o.dropDependents(ctx, b.SessionID, pid)
	o.broadcast(b.SessionID, cid, core.NotifyProducerClosed, ProducerClosed{ProducerID: pid})
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("producer", string(pid)).Msg("producer closed")
	return nil
}

// dropDependents removes consumers tracking a closed producer from every
// connection and closes them in the engine.
func (o *Orchestrator) dropDependents(ctx context.Context, sid domain.SessionID, pid domain.ProducerID) {
	dropped := o.Conns.DropConsumersOf(sid, pid)
	for _, c := range dropped {
		o.release(ctx, core.ConsumerHandle(c.ID))
	}
	o.Metrics.ConsumersRemoved(len(dropped))
}

// SetQuality steers receive layers of the consumers selected for the request.
func (o *Orchestrator) SetQuality(ctx context.Context, cid domain.ConnectionID, req QualityRequest) (QualityResult, error) {
	if req.ProducerID == "" {
		return QualityResult{}, errors.Wrap(domain.ErrInvalidInput, "producerId is required")
	}
	q, err := app.ParseQuality(req.Quality)
	if err != nil {
		return QualityResult{}, err
	}
	target, err := o.Quality.Select(cid, req.ProducerID, q, req.UserID)
	if err != nil {
		return QualityResult{}, err
	}
	res := QualityResult{Quality: q, Layers: target.Layers, MaxBitrate: q.MaxBitrate()}
	var firstErr error
	for _, id := range target.Consumers {
		if err := o.Engine.SetConsumerLayers(ctx, id, target.Layers); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("consumer", string(id)).Msg("set consumer layers")
			if firstErr == nil {
				firstErr = domain.EngineFailure(err)
			}
			continue
		}
		res.Applied++
	}
	if firstErr != nil {
		return QualityResult{}, firstErr
	}
	return res, nil
}
