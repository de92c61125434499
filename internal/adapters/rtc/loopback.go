package rtc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"sync"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type LoopbackConfig struct {
	AnnouncedIP string
	MinPort     uint16
	MaxPort     uint16
	Codecs      []core.Codec
}

// DefaultCodecs is the router codec set used when none is configured.
func DefaultCodecs() []core.Codec {
	return []core.Codec{
		{Kind: domain.KindAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, PreferredPayloadType: 100},
		{Kind: domain.KindVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, PreferredPayloadType: 101},
		{Kind: domain.KindVideo, MimeType: webrtc.MimeTypeH264, ClockRate: 90000, PreferredPayloadType: 102},
	}
}

type lbTransport struct {
	dir       core.Direction
	connected bool
	producers map[domain.ProducerID]struct{}
	consumers map[domain.ConsumerID]struct{}
}

type lbProducer struct {
	kind      domain.MediaKind
	transport domain.TransportID
	params    core.RTPParameters
}

type lbConsumer struct {
	producer  domain.ProducerID
	transport domain.TransportID
	layers    core.Layers
}

// Loopback is an in-process MediaEngine. It keeps the bookkeeping a real
// router would (ids, ownership, codec matching, cascading close) without
// moving any RTP.
type Loopback struct {
	cfg          LoopbackConfig
	fingerprints []webrtc.DTLSFingerprint

	mu         sync.Mutex
	nextPort   uint16
	transports map[domain.TransportID]*lbTransport
	producers  map[domain.ProducerID]*lbProducer
	consumers  map[domain.ConsumerID]*lbConsumer
}

func NewLoopback(cfg LoopbackConfig) (*Loopback, error) {
	if len(cfg.Codecs) == 0 {
		cfg.Codecs = DefaultCodecs()
	}
	if cfg.AnnouncedIP == "" {
		cfg.AnnouncedIP = "127.0.0.1"
	}
	if cfg.MinPort == 0 || cfg.MaxPort < cfg.MinPort {
		cfg.MinPort, cfg.MaxPort = 40000, 49999
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate dtls key")
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, errors.Wrap(err, "generate dtls certificate")
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, errors.Wrap(err, "dtls fingerprints")
	}
	return &Loopback{
		cfg:          cfg,
		fingerprints: fps,
		nextPort:     cfg.MinPort,
		transports:   make(map[domain.TransportID]*lbTransport),
		producers:    make(map[domain.ProducerID]*lbProducer),
		consumers:    make(map[domain.ConsumerID]*lbConsumer),
	}, nil
}

func (l *Loopback) Capabilities(ctx context.Context) (core.RTPCapabilities, error) {
	return core.RTPCapabilities{Codecs: append([]core.Codec(nil), l.cfg.Codecs...)}, nil
}

func (l *Loopback) allocPortLocked() uint16 {
	p := l.nextPort
	if l.nextPort >= l.cfg.MaxPort {
		l.nextPort = l.cfg.MinPort
	} else {
		l.nextPort++
	}
	return p
}

func (l *Loopback) CreateTransport(ctx context.Context, opts core.TransportOptions) (*core.Transport, error) {
	if opts.Direction != core.DirectionSend && opts.Direction != core.DirectionRecv {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "direction %q", opts.Direction)
	}
	id := domain.TransportID(uuid.NewString())

	l.mu.Lock()
	port := l.allocPortLocked()
	l.transports[id] = &lbTransport{
		dir:       opts.Direction,
		producers: make(map[domain.ProducerID]struct{}),
		consumers: make(map[domain.ConsumerID]struct{}),
	}
	l.mu.Unlock()

	log.Debug().Str("module", "rtc").Str("transport", string(id)).Str("conn", string(opts.ConnectionID)).Uint16("port", port).Msg("loopback transport created")
	return &core.Transport{
		ID: id,
		Params: core.TransportParams{
			ICEParameters: webrtc.ICEParameters{
				UsernameFragment: strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
				Password:         strings.ReplaceAll(uuid.NewString(), "-", ""),
				ICELite:          true,
			},
			ICECandidates: []core.ICECandidate{{
				Foundation: "udpcandidate",
				Priority:   1076302079,
				IP:         l.cfg.AnnouncedIP,
				Protocol:   "udp",
				Port:       port,
				Type:       "host",
			}},
			DTLSParameters: core.DTLSParameters{Role: "auto", Fingerprints: l.fingerprints},
		},
	}, nil
}

func (l *Loopback) ConnectTransport(ctx context.Context, id domain.TransportID, dtls core.DTLSParameters) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.transports[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "transport %s", id)
	}
	if t.connected {
		return errors.Errorf("transport %s already connected", id)
	}
	t.connected = true
	return nil
}

func (l *Loopback) Produce(ctx context.Context, id domain.TransportID, kind domain.MediaKind, params core.RTPParameters) (domain.ProducerID, error) {
	for _, c := range params.Codecs {
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(kind)+"/") {
			return "", errors.Wrapf(domain.ErrInvalidInput, "codec %s is not %s", c.MimeType, kind)
		}
		if !l.supported(c) {
			return "", errors.Wrapf(domain.ErrIncompatible, "codec %s not supported by router", c.MimeType)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.transports[id]
	if !ok {
		return "", errors.Wrapf(domain.ErrNotFound, "transport %s", id)
	}
	if t.dir != core.DirectionSend {
		return "", errors.Errorf("transport %s is not a send transport", id)
	}
	pid := domain.ProducerID(uuid.NewString())
	l.producers[pid] = &lbProducer{kind: kind, transport: id, params: params}
	t.producers[pid] = struct{}{}
	return pid, nil
}

func (l *Loopback) supported(c core.Codec) bool {
	return core.RTPCapabilities{Codecs: l.cfg.Codecs}.Supports(c)
}

func (l *Loopback) Consume(ctx context.Context, id domain.TransportID, producer domain.ProducerID, caps core.RTPCapabilities) (*core.Consumer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.transports[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "transport %s", id)
	}
	if t.dir != core.DirectionRecv {
		return nil, errors.Errorf("transport %s is not a recv transport", id)
	}
	p, ok := l.producers[producer]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "producer %s", producer)
	}
	var codecs []core.Codec
	for _, c := range p.params.Codecs {
		if caps.Supports(c) {
			codecs = append(codecs, c)
		}
	}
	if len(codecs) == 0 {
		return nil, errors.Wrapf(domain.ErrIncompatible, "cannot consume producer %s", producer)
	}
	cid := domain.ConsumerID(uuid.NewString())
	top := len(p.params.Encodings) - 1
	if top < 0 {
		top = 0
	}
	l.consumers[cid] = &lbConsumer{producer: producer, transport: id, layers: core.Layers{Spatial: top, Temporal: 2}}
	t.consumers[cid] = struct{}{}
	return &core.Consumer{
		ID:         cid,
		ProducerID: producer,
		Kind:       p.kind,
		RTPParameters: core.RTPParameters{
			MID:       p.params.MID,
			Codecs:    codecs,
			Encodings: []core.Encoding{{SSRC: uuid.New().ID()}},
		},
	}, nil
}

// SetConsumerLayers clamps the spatial layer to what the producer sends.
func (l *Loopback) SetConsumerLayers(ctx context.Context, id domain.ConsumerID, layers core.Layers) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.consumers[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "consumer %s", id)
	}
	if p, ok := l.producers[c.producer]; ok {
		if top := len(p.params.Encodings) - 1; layers.Spatial > top {
			layers.Spatial = max(top, 0)
		}
	}
	c.layers = layers
	return nil
}

// Close releases a resource and everything that depends on it. Unknown handles are ignored.
func (l *Loopback) Close(ctx context.Context, h core.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch h.Type {
	case core.HandleTransport:
		l.closeTransportLocked(domain.TransportID(h.ID))
	case core.HandleProducer:
		l.closeProducerLocked(domain.ProducerID(h.ID))
	case core.HandleConsumer:
		l.closeConsumerLocked(domain.ConsumerID(h.ID))
	default:
		return errors.Wrapf(domain.ErrInvalidInput, "handle type %q", h.Type)
	}
	return nil
}

func (l *Loopback) closeTransportLocked(id domain.TransportID) {
	t, ok := l.transports[id]
	if !ok {
		return
	}
	for pid := range t.producers {
		l.closeProducerLocked(pid)
	}
	for cid := range t.consumers {
		l.closeConsumerLocked(cid)
	}
	delete(l.transports, id)
}

func (l *Loopback) closeProducerLocked(id domain.ProducerID) {
	p, ok := l.producers[id]
	if !ok {
		return
	}
	for cid, c := range l.consumers {
		if c.producer == id {
			l.closeConsumerLocked(cid)
		}
	}
	if t, ok := l.transports[p.transport]; ok {
		delete(t.producers, id)
	}
	delete(l.producers, id)
}

func (l *Loopback) closeConsumerLocked(id domain.ConsumerID) {
	c, ok := l.consumers[id]
	if !ok {
		return
	}
	if t, ok := l.transports[c.transport]; ok {
		delete(t.consumers, id)
	}
	delete(l.consumers, id)
}

// Counts reports live transports, producers and consumers.
func (l *Loopback) Counts() (transports, producers, consumers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transports), len(l.producers), len(l.consumers)
}

// ConsumerLayers returns the layers currently selected for a consumer.
func (l *Loopback) ConsumerLayers(id domain.ConsumerID) (core.Layers, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.consumers[id]
	if !ok {
		return core.Layers{}, false
	}
	return c.layers, true
}
