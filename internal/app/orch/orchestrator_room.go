package orch

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const MaxMessageLen = 2000

// Peer notification payloads.
type (
	UserLeft struct {
		UserID domain.UserID `json:"userId"`
	}
	ProducerClosed struct {
		ProducerID domain.ProducerID `json:"producerId"`
	}
	StreamNotice struct {
		UserID   domain.UserID `json:"userId"`
		UserName string        `json:"userName"`
	}
	HandRaise struct {
		UserID   domain.UserID `json:"userId"`
		UserName string        `json:"userName"`
		IsRaised bool          `json:"isRaised"`
	}
	ChatMessage struct {
		ID         string        `json:"id"`
		UserID     domain.UserID `json:"userId"`
		UserName   string        `json:"userName"`
		IsTeacher  bool          `json:"isTeacher"`
		Content    string        `json:"content"`
		IsQuestion bool          `json:"isQuestion"`
		Timestamp  int64         `json:"timestamp"`
	}
	MuteChange struct {
		UserID  domain.UserID `json:"userId"`
		IsMuted bool          `json:"isMuted"`
	}
	VideoChange struct {
		UserID       domain.UserID `json:"userId"`
		VideoEnabled bool          `json:"videoEnabled"`
	}
	ScreenShare struct {
		UserID   domain.UserID `json:"userId"`
		UserName string        `json:"userName,omitempty"`
	}
	QuestionAnswered struct {
		MessageID string `json:"messageId"`
	}
)

// JoinResult is the late-joiner context returned to a joining connection.
type JoinResult struct {
	SessionID    domain.SessionID      `json:"sessionId"`
	UserID       domain.UserID         `json:"userId"`
	IsTeacher    bool                  `json:"isTeacher"`
	Live         bool                  `json:"live"`
	Sharing      domain.UserID         `json:"sharing,omitempty"`
	Participants []domain.MemberDTO    `json:"participants"`
	Producers    []domain.ProducerInfo `json:"producers"`
}

// StudentJoin is the result of the REST join.
type StudentJoin struct {
	User     domain.User
	Students []domain.User
	Live     bool
}

func (o *Orchestrator) CreateSession(ctx context.Context, teacherName, sessionName string) (domain.SessionID, domain.User, error) {
	sid, teacher, err := o.Sessions.CreateSession(teacherName, sessionName)
	if err != nil {
		return "", domain.User{}, err
	}
	o.Metrics.SessionCreated()
	o.publish(ctx, core.EventSessionCreated, sid, teacher.ID, "")
	return sid, teacher, nil
}

func (o *Orchestrator) JoinSession(ctx context.Context, sid domain.SessionID, userName string) (StudentJoin, error) {
	u, students, err := o.Sessions.JoinSession(sid, userName)
	if err != nil {
		return StudentJoin{}, err
	}
	info, err := o.Sessions.FindSession(sid)
	if err != nil {
		return StudentJoin{}, err
	}
	return StudentJoin{User: u, Students: students, Live: info.Live}, nil
}

func (o *Orchestrator) FindSession(sid domain.SessionID) (domain.SessionInfo, error) {
	return o.Sessions.FindSession(sid)
}

// Open registers a freshly accepted channel. cancel is how the server closes it.
func (o *Orchestrator) Open(cid domain.ConnectionID, cancel context.CancelFunc) error {
	if err := o.Conns.Open(cid, cancel); err != nil {
		return err
	}
	o.Metrics.ConnectionOpened()
	return nil
}

// Join binds the connection to a session member and adds it to the session's
// notification group. Peers learn about it through user_joined.
func (o *Orchestrator) Join(ctx context.Context, cid domain.ConnectionID, sig core.SignalConnection, sid domain.SessionID, uid domain.UserID) (JoinResult, error) {
	if sid == "" || uid == "" {
		return JoinResult{}, errors.Wrap(domain.ErrInvalidInput, "sessionId and userId are required")
	}
	member, err := o.Conns.Bind(cid, sid, uid)
	if err != nil {
		return JoinResult{}, err
	}
	room := o.Rooms.GetOrCreate(sid)
	room.AddMember(cid, core.NewPeer(cid, member, sig))

	info, err := o.Sessions.FindSession(sid)
	if err != nil {
		return JoinResult{}, err
	}
	res := JoinResult{
		SessionID:    sid,
		UserID:       uid,
		IsTeacher:    member.IsTeacher(),
		Live:         info.Live,
		Sharing:      info.Sharing,
		Participants: room.MembersSnapshot(),
		Producers:    info.Producers,
	}

	o.broadcast(sid, cid, core.NotifyUserJoined, member.DTO())
	o.publish(ctx, core.EventUserJoined, sid, uid, "")
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("session", string(sid)).Str("user", string(uid)).Bool("teacher", member.IsTeacher()).Msg("joined")
	return res, nil
}

// StreamStart marks the session live. Only the teacher may start it.
func (o *Orchestrator) StreamStart(ctx context.Context, cid domain.ConnectionID) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	if !b.Member.IsTeacher() {
		return errors.Wrap(domain.ErrInvalidInput, "only the teacher can start the stream")
	}
	changed, err := o.Sessions.SetLive(b.SessionID, true)
	if err != nil {
		return err
	}
	if changed {
		o.broadcast(b.SessionID, cid, core.NotifyStreamStarted, StreamNotice{UserID: b.Member.User.ID, UserName: b.Member.User.Username})
		o.publish(ctx, core.EventLivestreamStarted, b.SessionID, b.Member.User.ID, "")
	}
	return nil
}

// StreamEnd announces the end of the stream. The caller must be the teacher or
// own a producer. Producers stay open; they are closed one by one or on disconnect.
func (o *Orchestrator) StreamEnd(ctx context.Context, cid domain.ConnectionID) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	if !b.Member.IsTeacher() && o.Conns.ProducerCount(cid) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "caller owns no producer")
	}
	if _, err := o.Sessions.SetLive(b.SessionID, false); err != nil {
		return err
	}
	o.broadcast(b.SessionID, cid, core.NotifyStreamEnded, StreamNotice{UserID: b.Member.User.ID, UserName: b.Member.User.Username})
	o.publish(ctx, core.EventLivestreamStopped, b.SessionID, b.Member.User.ID, core.ReasonExplicit)
	return nil
}

func (o *Orchestrator) RaiseHand(ctx context.Context, cid domain.ConnectionID, raised bool) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	o.broadcast(b.SessionID, "", core.NotifyHandRaiseChanged, HandRaise{UserID: b.Member.User.ID, UserName: b.Member.User.Username, IsRaised: raised})
	return nil
}

// SendMessage relays a chat message to the whole session, sender included.
func (o *Orchestrator) SendMessage(ctx context.Context, cid domain.ConnectionID, content string, question bool) (string, error) {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "message empty")
	}
	if len(content) > MaxMessageLen {
		return "", errors.Wrap(domain.ErrInvalidInput, "message too long")
	}
	msg := ChatMessage{
		ID:         uuid.NewString(),
		UserID:     b.Member.User.ID,
		UserName:   b.Member.User.Username,
		IsTeacher:  b.Member.IsTeacher(),
		Content:    content,
		IsQuestion: question,
		Timestamp:  time.Now().UnixMilli(),
	}
	if question {
		if err := o.Sessions.RecordQuestion(b.SessionID, msg.ID); err != nil {
			return "", err
		}
	}
	o.broadcast(b.SessionID, "", core.NotifyNewMessage, msg)
	return msg.ID, nil
}

// MarkQuestionAnswered tells the session a question was answered. Only the
// teacher may do it; each question is announced once.
func (o *Orchestrator) MarkQuestionAnswered(ctx context.Context, cid domain.ConnectionID, msgID string) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	if !b.Member.IsTeacher() {
		return errors.Wrap(domain.ErrInvalidInput, "only the teacher can answer questions")
	}
	if msgID == "" {
		return errors.Wrap(domain.ErrInvalidInput, "messageId is required")
	}
	open, err := o.Sessions.AnswerQuestion(b.SessionID, msgID)
	if err != nil {
		return err
	}
	if open {
		o.broadcast(b.SessionID, "", core.NotifyQuestionAnswered, QuestionAnswered{MessageID: msgID})
	}
	return nil
}

func (o *Orchestrator) ToggleMute(ctx context.Context, cid domain.ConnectionID, muted bool) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	o.broadcast(b.SessionID, "", core.NotifyMuteChanged, MuteChange{UserID: b.Member.User.ID, IsMuted: muted})
	return nil
}

func (o *Orchestrator) ToggleVideo(ctx context.Context, cid domain.ConnectionID, enabled bool) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	o.broadcast(b.SessionID, "", core.NotifyVideoChanged, VideoChange{UserID: b.Member.User.ID, VideoEnabled: enabled})
	return nil
}

// StartScreenShare claims the session's single screen share slot.
func (o *Orchestrator) StartScreenShare(ctx context.Context, cid domain.ConnectionID) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	started, err := o.Sessions.StartSharing(b.SessionID, b.Member.User.ID)
	if err != nil {
		return err
	}
	if started {
		o.broadcast(b.SessionID, "", core.NotifyScreenShareStarted, ScreenShare{UserID: b.Member.User.ID, UserName: b.Member.User.Username})
	}
	return nil
}

// StopScreenShare releases the slot if the caller holds it.
func (o *Orchestrator) StopScreenShare(ctx context.Context, cid domain.ConnectionID) error {
	b, err := o.Conns.Binding(cid)
	if err != nil {
		return err
	}
	stopped, err := o.Sessions.StopSharing(b.SessionID, b.Member.User.ID)
	if err != nil {
		return err
	}
	if !stopped {
		return errors.Wrap(domain.ErrInvalidInput, "caller is not sharing the screen")
	}
	o.broadcast(b.SessionID, "", core.NotifyScreenShareStopped, ScreenShare{UserID: b.Member.User.ID})
	return nil
}

// ActiveSession summarizes a streaming session for the lobby listing.
type ActiveSession struct {
	SessionID        domain.SessionID `json:"sessionId"`
	Name             string           `json:"name"`
	TeacherID        domain.UserID    `json:"teacherId"`
	TeacherName      string           `json:"teacherName"`
	ParticipantCount int              `json:"participantCount"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ActiveSessions lists sessions whose stream is live.
func (o *Orchestrator) ActiveSessions() []ActiveSession {
	live := o.Sessions.LiveSessions()
	out := make([]ActiveSession, 0, len(live))
	for _, s := range live {
		out = append(out, ActiveSession{
			SessionID:        s.ID,
			Name:             s.Name,
			TeacherID:        s.Teacher.ID,
			TeacherName:      s.Teacher.Username,
			ParticipantCount: len(s.Students) + 1,
			CreatedAt:        s.CreatedAt,
		})
	}
	return out
}

// Leave runs the disconnect teardown for an explicit departure. user_left is
// broadcast by the teardown once media is released.
func (o *Orchestrator) Leave(ctx context.Context, cid domain.ConnectionID) error {
	if _, err := o.Conns.Snapshot(cid); err != nil {
		return err
	}
	o.Cleanup(ctx, cid)
	return nil
}
