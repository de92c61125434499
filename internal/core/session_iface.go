package core

import "github.com/dkeye/classroom/internal/domain"

// Peer binds a session member to its live signaling endpoint.
// This is what a room stores and fans out to.
type Peer interface {
	ConnectionID() domain.ConnectionID
	Meta() domain.Member
	Signal() SignalConnection
}
