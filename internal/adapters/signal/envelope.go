package signal

import (
	"encoding/json"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
)

// Request types.
const (
	TypeJoin                    = "join"
	TypeRouterCapabilities      = "get-router-capabilities"
	TypeCreateProducerTransport = "create-producer-transport"
	TypeCreateConsumerTransport = "create-consumer-transport"
	TypeConnectTransport        = "connect-transport"
	TypeProduce                 = "produce"
	TypeConsume                 = "consume"
	TypeCloseProducer           = "close-producer"
	TypeStreamStart             = "stream-start"
	TypeStreamEnd               = "stream-end"
	TypeSetQuality              = "set-quality"
	TypeRaiseHand               = "raise-hand"
	TypeSendMessage             = "send-message"
	TypeMarkQuestionAnswered    = "mark-question-answered"
	TypeToggleMute              = "toggle-mute"
	TypeToggleVideo             = "toggle-video"
	TypeStartScreenShare        = "start-screen-share"
	TypeStopScreenShare         = "stop-screen-share"
	TypePing                    = "ping"
	TypeLeave                   = "leave"

	TypeResponse = "response"

	// metric labels for requests that never reached a route
	typeInvalid = "invalid"
	typeUnknown = "unknown"
)

// Request is what a client sends. ID is echoed back verbatim to correlate the response.
type Request struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id,omitempty"`
	OK    bool            `json:"ok"`
	Data  any             `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

func unknownType(t string) error {
	return errors.Wrapf(domain.ErrInvalidInput, "unknown request type %q", t)
}

// decode parses an optional payload into v.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, "malformed payload")
	}
	return nil
}
