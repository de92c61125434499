package core

import "errors"

// Frame is a raw encoded signaling message.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSignalClosed = errors.New("connection closed")
)

// SignalConnection abstracts a participant's messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full queue yields ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
