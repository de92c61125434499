package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/classroom/internal/app/orch"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
)

// connState is per-connection data owned by the read pump.
type connState struct {
	id       domain.ConnectionID
	conn     *WsSignalConn
	defaults JoinDefaults
	userID   domain.UserID
}

type handlerFunc func(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error)

var routes map[string]handlerFunc

func init() {
	routes = map[string]handlerFunc{
		TypeJoin:                    handleJoin,
		TypeRouterCapabilities:      handleRouterCapabilities,
		TypeCreateProducerTransport: createTransport(core.DirectionSend),
		TypeCreateConsumerTransport: createTransport(core.DirectionRecv),
		TypeConnectTransport:        handleConnectTransport,
		TypeProduce:                 handleProduce,
		TypeConsume:                 handleConsume,
		TypeCloseProducer:           handleCloseProducer,
		TypeStreamStart:             handleStreamStart,
		TypeStreamEnd:               handleStreamEnd,
		TypeSetQuality:              handleSetQuality,
		TypeRaiseHand:               handleRaiseHand,
		TypeSendMessage:             handleSendMessage,
		TypeMarkQuestionAnswered:    handleMarkQuestionAnswered,
		TypeToggleMute:              handleToggleMute,
		TypeToggleVideo:             handleToggleVideo,
		TypeStartScreenShare:        handleStartScreenShare,
		TypeStopScreenShare:         handleStopScreenShare,
		TypePing:                    handlePing,
		TypeLeave:                   handleLeave,
	}
}

type joinPayload struct {
	SessionID domain.SessionID `json:"sessionId"`
	UserID    domain.UserID    `json:"userId"`
}

func handleJoin(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p joinPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		p.SessionID = cs.defaults.SessionID
	}
	if p.UserID == "" {
		p.UserID = cs.defaults.UserID
	}
	res, err := ctl.Orch.Join(ctx, cs.id, cs.conn, p.SessionID, p.UserID)
	if err != nil {
		return nil, err
	}
	cs.userID = res.UserID
	ctl.Limiter.Acquire(cs.userID)
	return res, nil
}

func handleRouterCapabilities(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	caps, err := ctl.Orch.RouterCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"rtpCapabilities": caps}, nil
}

type transportResponse struct {
	TransportID      domain.TransportID   `json:"transportId"`
	ConnectionParams core.TransportParams `json:"connectionParams"`
}

func createTransport(dir core.Direction) handlerFunc {
	return func(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
		t, err := ctl.Orch.CreateTransport(ctx, cs.id, dir)
		if err != nil {
			return nil, err
		}
		return transportResponse{TransportID: t.ID, ConnectionParams: t.Params}, nil
	}
}

type connectPayload struct {
	TransportID    domain.TransportID  `json:"transportId"`
	DTLSParameters core.DTLSParameters `json:"dtlsParameters"`
}

func handleConnectTransport(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p connectPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.ConnectTransport(ctx, cs.id, p.TransportID, p.DTLSParameters)
}

type producePayload struct {
	TransportID   domain.TransportID `json:"transportId"`
	Kind          string             `json:"kind"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
	SessionID     domain.SessionID   `json:"sessionId"`
	UserID        domain.UserID      `json:"userId"`
}

func handleProduce(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p producePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	pid, err := ctl.Orch.Produce(ctx, cs.id, orch.ProduceRequest{
		TransportID:   p.TransportID,
		Kind:          p.Kind,
		RTPParameters: p.RTPParameters,
		SessionID:     p.SessionID,
		UserID:        p.UserID,
	})
	if err != nil {
		return nil, err
	}
	return map[string]domain.ProducerID{"producerId": pid}, nil
}

type consumePayload struct {
	TransportID         domain.TransportID   `json:"transportId"`
	ProducerID          domain.ProducerID    `json:"producerId"`
	RTPCapabilities     core.RTPCapabilities `json:"rtpCapabilities"`
	ReceiveCapabilities core.RTPCapabilities `json:"receiveCapabilities"`
}

type consumeResponse struct {
	ConsumerID    domain.ConsumerID  `json:"consumerId"`
	ProducerID    domain.ProducerID  `json:"producerId"`
	Kind          domain.MediaKind   `json:"kind"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
}

func handleConsume(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p consumePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	caps := p.ReceiveCapabilities
	if len(caps.Codecs) == 0 {
		caps = p.RTPCapabilities
	}
	c, err := ctl.Orch.Consume(ctx, cs.id, orch.ConsumeRequest{TransportID: p.TransportID, ProducerID: p.ProducerID, Capabilities: caps})
	if err != nil {
		return nil, err
	}
	return consumeResponse{ConsumerID: c.ID, ProducerID: c.ProducerID, Kind: c.Kind, RTPParameters: c.RTPParameters}, nil
}

type producerPayload struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

func handleCloseProducer(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p producerPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.ProducerID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "producerId is required")
	}
	return nil, ctl.Orch.CloseProducer(ctx, cs.id, p.ProducerID)
}

func handleStreamStart(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.StreamStart(ctx, cs.id)
}

func handleStreamEnd(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.StreamEnd(ctx, cs.id)
}

type qualityPayload struct {
	ProducerID domain.ProducerID `json:"producerId"`
	Quality    string            `json:"quality"`
	UserID     domain.UserID     `json:"userId"`
}

func handleSetQuality(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p qualityPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return ctl.Orch.SetQuality(ctx, cs.id, orch.QualityRequest{ProducerID: p.ProducerID, Quality: p.Quality, UserID: p.UserID})
}

// allow applies the per-user chat limit. Unjoined connections fall through to
// the orchestrator, which rejects them.
func (ctl *SignalWSController) allow(cs *connState) error {
	if !ctl.Limiter.Allow(cs.userID) {
		return errors.Wrap(domain.ErrRateLimited, "slow down")
	}
	return nil
}

type handPayload struct {
	Raised   *bool `json:"raised"`
	IsRaised *bool `json:"isRaised"`
}

func handleRaiseHand(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p handPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	raised := p.Raised
	if raised == nil {
		raised = p.IsRaised
	}
	if raised == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "raised is required")
	}
	if err := ctl.allow(cs); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.RaiseHand(ctx, cs.id, *raised)
}

type messagePayload struct {
	Content    string `json:"content"`
	IsQuestion bool   `json:"isQuestion"`
}

func handleSendMessage(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p messagePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if err := ctl.allow(cs); err != nil {
		return nil, err
	}
	id, err := ctl.Orch.SendMessage(ctx, cs.id, p.Content, p.IsQuestion)
	if err != nil {
		return nil, err
	}
	return map[string]string{"messageId": id}, nil
}

type answeredPayload struct {
	MessageID string `json:"messageId"`
}

func handleMarkQuestionAnswered(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p answeredPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.MarkQuestionAnswered(ctx, cs.id, p.MessageID)
}

type mutePayload struct {
	IsMuted *bool `json:"isMuted"`
}

func handleToggleMute(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p mutePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.IsMuted == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "isMuted is required")
	}
	return nil, ctl.Orch.ToggleMute(ctx, cs.id, *p.IsMuted)
}

type videoPayload struct {
	VideoEnabled *bool `json:"videoEnabled"`
}

func handleToggleVideo(ctx context.Context, ctl *SignalWSController, cs *connState, data json.RawMessage) (any, error) {
	var p videoPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.VideoEnabled == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "videoEnabled is required")
	}
	return nil, ctl.Orch.ToggleVideo(ctx, cs.id, *p.VideoEnabled)
}

func handleStartScreenShare(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.StartScreenShare(ctx, cs.id)
}

func handleStopScreenShare(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.StopScreenShare(ctx, cs.id)
}

func handlePing(context.Context, *SignalWSController, *connState, json.RawMessage) (any, error) {
	return map[string]int64{"pong": time.Now().UnixMilli()}, nil
}

func handleLeave(ctx context.Context, ctl *SignalWSController, cs *connState, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.Leave(ctx, cs.id)
}
