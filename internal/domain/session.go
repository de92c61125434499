package domain

import (
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

type (
	SessionID    string
	ConnectionID string
	TransportID  string
	ProducerID   string
	ConsumerID   string
)

const MaxSessionNameLen = 128

// MediaKind is the kind of a producer or consumer: audio or video.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// ParseMediaKind accepts the RTP codec type names understood by pion.
func ParseMediaKind(s string) (MediaKind, error) {
	switch webrtc.NewRTPCodecType(strings.ToLower(strings.TrimSpace(s))) {
	case webrtc.RTPCodecTypeAudio:
		return KindAudio, nil
	case webrtc.RTPCodecTypeVideo:
		return KindVideo, nil
	default:
		return "", errors.Wrapf(ErrInvalidInput, "unknown media kind %q", s)
	}
}

// ProducerInfo is the session-level view of a live producer.
type ProducerInfo struct {
	ID     ProducerID `json:"producerId"`
	Kind   MediaKind  `json:"kind"`
	UserID UserID     `json:"userId"`
}

// ProducerRecord is the connection-owned record of a producer.
type ProducerRecord struct {
	ID           ProducerID
	Kind         MediaKind
	ConnectionID ConnectionID
	SessionID    SessionID
}

// ConsumerRecord is the connection-owned record of a consumer.
type ConsumerRecord struct {
	ID           ConsumerID
	Kind         MediaKind
	ConnectionID ConnectionID
	ProducerID   ProducerID
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ID        SessionID      `json:"sessionId"`
	Name      string         `json:"name"`
	Teacher   User           `json:"teacher"`
	Students  []User         `json:"students"`
	Producers []ProducerInfo `json:"producers"`
	Live      bool           `json:"live"`
	Sharing   UserID         `json:"sharing,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NormalizeSessionName trims and validates a session display name.
func NormalizeSessionName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.Wrap(ErrInvalidInput, "session name empty")
	}
	if len(name) > MaxSessionNameLen {
		return "", errors.Wrap(ErrInvalidInput, "session name too long")
	}
	return name, nil
}
