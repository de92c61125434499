package core

import (
	"context"

	"github.com/dkeye/classroom/internal/domain"
)

// Lifecycle event types published to external consumers.
const (
	EventSessionCreated    = "session_created"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventLivestreamStarted = "livestream_started"
	EventLivestreamStopped = "livestream_stopped"
)

// Stop reasons for EventLivestreamStopped.
const (
	ReasonExplicit   = "explicit"
	ReasonDisconnect = "disconnect"
)

// Event is an outbound notification about session lifecycle. Sinks never feed
// state back into the coordinator.
type Event struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"session_id"`
	UserID    domain.UserID    `json:"user_id,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

type EventSink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
