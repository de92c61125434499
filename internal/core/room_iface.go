package core

import (
	"github.com/dkeye/classroom/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []Peer
}

// RoomService is the notification group of one session.
// It owns the set of joined connections but never touches media resources.
type RoomService interface {
	SessionID() domain.SessionID
	MemberCount() int
	MembersSnapshot() []domain.MemberDTO

	AddMember(cid domain.ConnectionID, p Peer)
	RemoveMember(cid domain.ConnectionID)
	// Broadcast delivers to every member except from. An empty from reaches everyone.
	Broadcast(from domain.ConnectionID, data Frame) PublishResult
}

type RoomInfo struct {
	SessionID   domain.SessionID `json:"sessionId"`
	MemberCount int              `json:"connectionCount"`
}

type RoomManager interface {
	GetOrCreate(id domain.SessionID) RoomService
	Get(id domain.SessionID) (RoomService, bool)
	List() []RoomInfo
}
