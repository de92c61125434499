package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Direction of a media transport relative to the participant.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// Codec is one entry of an RTP capability or parameter set.
type Codec struct {
	Kind                 domain.MediaKind `json:"kind,omitempty"`
	MimeType             string           `json:"mimeType"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	PayloadType          uint8            `json:"payloadType,omitempty"`
	PreferredPayloadType uint8            `json:"preferredPayloadType,omitempty"`
	Parameters           json.RawMessage  `json:"parameters,omitempty"`
	RTCPFeedback         json.RawMessage  `json:"rtcpFeedback,omitempty"`
}

// Capability converts c into pion's codec description.
func (c Codec) Capability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  c.MimeType,
		ClockRate: c.ClockRate,
		Channels:  c.Channels,
	}
}

// Matches reports whether both codecs describe the same media format.
func (c Codec) Matches(o Codec) bool {
	if !strings.EqualFold(c.MimeType, o.MimeType) || c.ClockRate != o.ClockRate {
		return false
	}
	if c.Channels != 0 && o.Channels != 0 && c.Channels != o.Channels {
		return false
	}
	return true
}

// RTPCapabilities describes what a receiver or the engine can handle.
type RTPCapabilities struct {
	Codecs           []Codec         `json:"codecs"`
	HeaderExtensions json.RawMessage `json:"headerExtensions,omitempty"`
}

// Supports reports whether any capability codec matches c.
func (caps RTPCapabilities) Supports(c Codec) bool {
	for _, have := range caps.Codecs {
		if have.Matches(c) {
			return true
		}
	}
	return false
}

type Encoding struct {
	RID             string `json:"rid,omitempty"`
	SSRC            uint32 `json:"ssrc,omitempty"`
	MaxBitrate      uint64 `json:"maxBitrate,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
}

// RTPParameters is the opaque-ish description of a produced or consumed stream.
type RTPParameters struct {
	MID              string          `json:"mid,omitempty"`
	Codecs           []Codec         `json:"codecs"`
	HeaderExtensions json.RawMessage `json:"headerExtensions,omitempty"`
	Encodings        []Encoding      `json:"encodings,omitempty"`
	RTCP             json.RawMessage `json:"rtcp,omitempty"`
}

type DTLSParameters struct {
	Role         string                   `json:"role,omitempty"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

// TransportParams is what a client needs to connect to an engine transport.
type TransportParams struct {
	ICEParameters  webrtc.ICEParameters `json:"iceParameters"`
	ICECandidates  []ICECandidate       `json:"iceCandidates"`
	DTLSParameters DTLSParameters       `json:"dtlsParameters"`
}

type TransportOptions struct {
	Direction    Direction
	SessionID    domain.SessionID
	ConnectionID domain.ConnectionID
}

type Transport struct {
	ID     domain.TransportID
	Params TransportParams
}

type Consumer struct {
	ID            domain.ConsumerID `json:"id"`
	ProducerID    domain.ProducerID `json:"producerId"`
	Kind          domain.MediaKind  `json:"kind"`
	RTPParameters RTPParameters     `json:"rtpParameters"`
}

// Layers selects spatial/temporal layers of a simulcast or SVC stream.
type Layers struct {
	Spatial  int `json:"spatialLayer"`
	Temporal int `json:"temporalLayer"`
}

type HandleType string

const (
	HandleTransport HandleType = "transport"
	HandleProducer  HandleType = "producer"
	HandleConsumer  HandleType = "consumer"
)

// Handle references any engine resource for Close.
type Handle struct {
	Type HandleType
	ID   string
}

func TransportHandle(id domain.TransportID) Handle { return Handle{Type: HandleTransport, ID: string(id)} }
func ProducerHandle(id domain.ProducerID) Handle   { return Handle{Type: HandleProducer, ID: string(id)} }
func ConsumerHandle(id domain.ConsumerID) Handle   { return Handle{Type: HandleConsumer, ID: string(id)} }

//go:generate mockgen -source=media_iface.go -destination=mocks/media_engine.go -package=mocks

// MediaEngine is the external media router. Every call may fail; failures are
// surfaced as domain.ErrEngineFailure unless they map to a more specific kind.
// Close of an unknown handle succeeds.
type MediaEngine interface {
	Capabilities(ctx context.Context) (RTPCapabilities, error)
	CreateTransport(ctx context.Context, opts TransportOptions) (*Transport, error)
	ConnectTransport(ctx context.Context, id domain.TransportID, dtls DTLSParameters) error
	Produce(ctx context.Context, id domain.TransportID, kind domain.MediaKind, params RTPParameters) (domain.ProducerID, error)
	Consume(ctx context.Context, id domain.TransportID, producer domain.ProducerID, caps RTPCapabilities) (*Consumer, error)
	SetConsumerLayers(ctx context.Context, id domain.ConsumerID, layers Layers) error
	Close(ctx context.Context, h Handle) error
}
