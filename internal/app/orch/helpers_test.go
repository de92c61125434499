package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/classroom/internal/adapters/rtc"
	"github.com/dkeye/classroom/internal/app"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var (
	vp8Codec  = core.Codec{MimeType: "video/VP8", ClockRate: 90000}
	opusCodec = core.Codec{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}
	recvCaps  = core.RTPCapabilities{Codecs: []core.Codec{vp8Codec, opusCodec}}
	dtls      = core.DTLSParameters{Role: "client", Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}}
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// recorder is a SignalConnection that keeps every frame it is given.
type recorder struct {
	mu     sync.Mutex
	frames []inbound
	full   bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return core.ErrBackpressure
	}
	var in inbound
	if err := json.Unmarshal(f, &in); err != nil {
		return err
	}
	r.frames = append(r.frames, in)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) of(typ string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []json.RawMessage
	for _, f := range r.frames {
		if f.Type == typ {
			out = append(out, f.Data)
		}
	}
	return out
}

type memSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *memSink) Publish(_ context.Context, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type env struct {
	t      *testing.T
	ctx    context.Context
	o      *Orchestrator
	engine *rtc.Loopback
	sink   *memSink
}

func newEnv(t *testing.T) *env {
	t.Helper()
	engine, err := rtc.NewLoopback(rtc.LoopbackConfig{})
	require.NoError(t, err)
	sink := &memSink{}
	o := New(app.NewSessions(), engine, sink, app.SimplePolicy{}, metrics.New())
	return &env{t: t, ctx: context.Background(), o: o, engine: engine, sink: sink}
}

func newEnvWith(t *testing.T, engine core.MediaEngine) *env {
	t.Helper()
	o := New(app.NewSessions(), engine, nil, app.SimplePolicy{}, nil)
	return &env{t: t, ctx: context.Background(), o: o}
}

// connect opens and joins a connection for uid, returning its recorder.
func (e *env) connect(cid domain.ConnectionID, sid domain.SessionID, uid domain.UserID) *recorder {
	e.t.Helper()
	rec := &recorder{}
	require.NoError(e.t, e.o.Open(cid, nil))
	_, err := e.o.Join(e.ctx, cid, rec, sid, uid)
	require.NoError(e.t, err)
	return rec
}

func (e *env) produce(cid domain.ConnectionID, kind string) domain.ProducerID {
	e.t.Helper()
	if has, _ := e.o.Conns.HasTransport(cid, core.DirectionSend); !has {
		_, err := e.o.CreateTransport(e.ctx, cid, core.DirectionSend)
		require.NoError(e.t, err)
	}
	codec := vp8Codec
	if kind == "audio" {
		codec = opusCodec
	}
	pid, err := e.o.Produce(e.ctx, cid, ProduceRequest{Kind: kind, RTPParameters: core.RTPParameters{Codecs: []core.Codec{codec}}})
	require.NoError(e.t, err)
	return pid
}

func (e *env) consume(cid domain.ConnectionID, pid domain.ProducerID) *core.Consumer {
	e.t.Helper()
	if has, _ := e.o.Conns.HasTransport(cid, core.DirectionRecv); !has {
		_, err := e.o.CreateTransport(e.ctx, cid, core.DirectionRecv)
		require.NoError(e.t, err)
	}
	c, err := e.o.Consume(e.ctx, cid, ConsumeRequest{ProducerID: pid, Capabilities: recvCaps})
	require.NoError(e.t, err)
	return c
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func appKickPolicy() app.Policy { return app.SimplePolicy{Kick: true} }
