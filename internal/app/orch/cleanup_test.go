package orch

import (
	"errors"
	"testing"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/core/mocks"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errEngineDown = errors.New("engine down")

func joinedTeacher(t *testing.T, e *env) domain.SessionID {
	t.Helper()
	sid, teacher, err := e.o.CreateSession(e.ctx, "T", "Math")
	require.NoError(t, err)
	e.connect("t", sid, teacher.ID)
	return sid
}

func TestCleanupIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)
	joinedTeacher(t, e)

	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&core.Transport{ID: "tr1"}, nil)
	engine.EXPECT().Produce(gomock.Any(), domain.TransportID("tr1"), domain.KindVideo, gomock.Any()).Return(domain.ProducerID("p1"), nil)
	e.produce("t", "video")

	gomock.InOrder(
		engine.EXPECT().Close(gomock.Any(), core.ProducerHandle("p1")).Return(nil).Times(1),
		engine.EXPECT().Close(gomock.Any(), core.TransportHandle("tr1")).Return(nil).Times(1),
	)

	e.o.Cleanup(e.ctx, "t")
	e.o.Cleanup(e.ctx, "t")
	e.o.Cleanup(e.ctx, "never-opened")
}

func TestCleanupOfUnjoinedConnectionTouchesNoEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)

	require.NoError(t, e.o.Open("c1", nil))
	e.o.Cleanup(e.ctx, "c1")
	assert.Equal(t, 0, e.o.Conns.Count())
}

func TestCleanupContinuesPastFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)
	m := metrics.New()
	e.o.Metrics = m
	sid := joinedTeacher(t, e)

	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&core.Transport{ID: "send"}, nil)
	engine.EXPECT().Produce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProducerID("p1"), nil)
	engine.EXPECT().Produce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProducerID("p2"), nil)
	e.produce("t", "video")
	e.produce("t", "audio")

	engine.EXPECT().Close(gomock.Any(), core.ProducerHandle("p1")).Return(errEngineDown)
	engine.EXPECT().Close(gomock.Any(), core.ProducerHandle("p2")).Return(nil)
	engine.EXPECT().Close(gomock.Any(), core.TransportHandle("send")).Return(errEngineDown)

	e.o.Cleanup(e.ctx, "t")

	info, err := e.o.FindSession(sid)
	require.NoError(t, err)
	assert.Empty(t, info.Producers)
	assert.Equal(t, 0, e.o.Conns.Count())
}

func TestEngineFailureCommitsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)
	sid, teacher, _ := e.o.CreateSession(e.ctx, "T", "Math")
	s, _ := e.o.JoinSession(e.ctx, sid, "Alice")
	e.connect("t", sid, teacher.ID)
	aliceRec := e.connect("a", sid, s.User.ID)

	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(nil, errEngineDown)
	_, err := e.o.CreateTransport(e.ctx, "t", core.DirectionSend)
	assert.Equal(t, domain.CodeEngineFailure, domain.CodeOf(err))
	assert.ErrorIs(t, err, errEngineDown)
	has, _ := e.o.Conns.HasTransport("t", core.DirectionSend)
	assert.False(t, has)

	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&core.Transport{ID: "tr"}, nil)
	_, err = e.o.CreateTransport(e.ctx, "t", core.DirectionSend)
	require.NoError(t, err)

	engine.EXPECT().Produce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProducerID(""), errEngineDown)
	_, err = e.o.Produce(e.ctx, "t", ProduceRequest{Kind: "video", RTPParameters: core.RTPParameters{Codecs: []core.Codec{vp8Codec}}})
	assert.Equal(t, domain.CodeEngineFailure, domain.CodeOf(err))

	info, _ := e.o.FindSession(sid)
	assert.Empty(t, info.Producers)
	assert.Empty(t, aliceRec.of(core.NotifyNewProducer))
}

func TestCapabilitiesPassthrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)

	caps := core.RTPCapabilities{Codecs: []core.Codec{vp8Codec}}
	engine.EXPECT().Capabilities(gomock.Any()).Return(caps, nil)
	got, err := e.o.RouterCapabilities(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, caps, got)

	engine.EXPECT().Capabilities(gomock.Any()).Return(core.RTPCapabilities{}, errEngineDown)
	_, err = e.o.RouterCapabilities(e.ctx)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
}

func TestSetQualityEngineFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockMediaEngine(ctrl)
	e := newEnvWith(t, engine)
	sid, teacher, _ := e.o.CreateSession(e.ctx, "T", "Math")
	s, _ := e.o.JoinSession(e.ctx, sid, "Alice")
	e.connect("t", sid, teacher.ID)
	e.connect("a", sid, s.User.ID)

	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&core.Transport{ID: "send"}, nil)
	engine.EXPECT().Produce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProducerID("p1"), nil)
	pid := e.produce("t", "video")
	engine.EXPECT().CreateTransport(gomock.Any(), gomock.Any()).Return(&core.Transport{ID: "recv"}, nil)
	engine.EXPECT().Consume(gomock.Any(), domain.TransportID("recv"), pid, gomock.Any()).
		Return(&core.Consumer{ID: "k1", ProducerID: pid, Kind: domain.KindVideo}, nil)
	e.consume("a", pid)

	engine.EXPECT().SetConsumerLayers(gomock.Any(), domain.ConsumerID("k1"), core.Layers{Spatial: 2, Temporal: 2}).Return(errEngineDown)
	_, err := e.o.SetQuality(e.ctx, "a", QualityRequest{ProducerID: pid, Quality: "high"})
	assert.Equal(t, domain.CodeEngineFailure, domain.CodeOf(err))
}

func TestDroppingOneOfTwoConnectionsKeepsUserOnline(t *testing.T) {
	e := newEnv(t)
	sid, teacher, _ := e.o.CreateSession(e.ctx, "T", "Math")
	s, _ := e.o.JoinSession(e.ctx, sid, "Alice")
	teacherRec := e.connect("t", sid, teacher.ID)
	tabA := e.connect("a1", sid, s.User.ID)
	e.connect("a2", sid, s.User.ID)

	e.o.Cleanup(e.ctx, "a2")
	assert.Empty(t, teacherRec.of(core.NotifyUserLeft))
	assert.Empty(t, tabA.of(core.NotifyUserLeft))
	assert.NotContains(t, e.sink.types(), core.EventUserLeft)
	info, _ := e.o.FindSession(sid)
	assert.Equal(t, []domain.User{s.User}, info.Students)

	e.o.Cleanup(e.ctx, "a1")
	left := teacherRec.of(core.NotifyUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, s.User.ID, decode[UserLeft](t, left[0]).UserID)
	assert.Contains(t, e.sink.types(), core.EventUserLeft)
	info, _ = e.o.FindSession(sid)
	assert.Empty(t, info.Students)
}

func TestTeacherSecondConnectionKeepsStreamLive(t *testing.T) {
	e := newEnv(t)
	sid, teacher, _ := e.o.CreateSession(e.ctx, "T", "Math")
	s, _ := e.o.JoinSession(e.ctx, sid, "Alice")
	e.connect("t1", sid, teacher.ID)
	e.connect("t2", sid, teacher.ID)
	aliceRec := e.connect("a", sid, s.User.ID)
	require.NoError(t, e.o.StreamStart(e.ctx, "t1"))

	e.o.Cleanup(e.ctx, "t1")
	assert.Empty(t, aliceRec.of(core.NotifyUserLeft))
	info, _ := e.o.FindSession(sid)
	assert.True(t, info.Live)

	e.o.Cleanup(e.ctx, "t2")
	assert.Len(t, aliceRec.of(core.NotifyUserLeft), 1)
	info, _ = e.o.FindSession(sid)
	assert.False(t, info.Live)
	assert.Contains(t, e.sink.types(), core.EventLivestreamStopped)
}

func TestSharerDisconnectStopsScreenShare(t *testing.T) {
	e := newEnv(t)
	sid, teacher, _ := e.o.CreateSession(e.ctx, "T", "Math")
	s, _ := e.o.JoinSession(e.ctx, sid, "Alice")
	teacherRec := e.connect("t", sid, teacher.ID)
	e.connect("a", sid, s.User.ID)
	require.NoError(t, e.o.StartScreenShare(e.ctx, "a"))

	e.o.Cleanup(e.ctx, "a")
	stopped := teacherRec.of(core.NotifyScreenShareStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, s.User.ID, decode[ScreenShare](t, stopped[0]).UserID)
	info, _ := e.o.FindSession(sid)
	assert.Empty(t, info.Sharing)
}
