package core

import "encoding/json"

// Peer-facing event names.
const (
	NotifyUserJoined       = "user_joined"
	NotifyUserLeft         = "user_left"
	NotifyNewProducer      = "newProducer"
	NotifyProducerClosed   = "producerClosed"
	NotifyStreamStarted    = "livestream_started"
	NotifyStreamEnded      = "livestream_ended"
	NotifyHandRaiseChanged = "hand_raise_changed"
	NotifyNewMessage       = "new_message"

	NotifyMuteChanged        = "user_mute_changed"
	NotifyVideoChanged       = "user_video_changed"
	NotifyScreenShareStarted = "screen_share_started"
	NotifyScreenShareStopped = "screen_share_stopped"
	NotifyQuestionAnswered   = "question_answered"
)

// Notification is a server-pushed message. It shares the "type" field with
// request envelopes so clients can route every frame the same way.
type Notification struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func EncodeNotification(typ string, data any) (Frame, error) {
	return json.Marshal(Notification{Type: typ, Data: data})
}
