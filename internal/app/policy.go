package app

import "github.com/dkeye/classroom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a peer whose send queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, peer core.Peer) BackpressureAction
}

// SimplePolicy drops the frame, or kicks the slow peer when Kick is set.
type SimplePolicy struct {
	Kick bool
}

func (p SimplePolicy) OnBackPressure(room core.RoomService, peer core.Peer) BackpressureAction {
	if p.Kick {
		return KickMember
	}
	return DropFrame
}
