// Package protocol defines the JSON frames exchanged over the conversation
// websocket.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/vango-go/vai-converse/pkg/core"
)

const (
	TypeConnectionInfo = "connection_info"
	TypeWelcome        = "welcome"
	TypeText           = "text"
	TypeVoice          = "voice"
)

// ClientMessage is the only frame the client sends.
type ClientMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewTextMessage returns an outbound typed-text frame.
func NewTextMessage(text string) ClientMessage {
	return ClientMessage{Message: text, Type: TypeText}
}

// NewVoiceMessage returns an outbound transcribed-speech frame.
func NewVoiceMessage(text string) ClientMessage {
	return ClientMessage{Message: text, Type: TypeVoice}
}

// ServerFrame is a decoded inbound payload.
type ServerFrame interface {
	frameType() string
}

// ServerConnectionInfo announces session metadata. It never produces a turn.
type ServerConnectionInfo struct {
	AgentName       string `json:"agent_name,omitempty"`
	AgentPurpose    string `json:"agent_purpose,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
	ConversationID  string `json:"conversation_id,omitempty"`
}

func (ServerConnectionInfo) frameType() string { return TypeConnectionInfo }

// ServerError carries a server-side failure to show the user.
type ServerError struct {
	Error string `json:"error"`
}

func (ServerError) frameType() string { return "error" }

// ServerMessage is an agent utterance. Names, when present, only fill
// values the client does not have yet.
type ServerMessage struct {
	Message         string `json:"message"`
	Sender          string `json:"sender,omitempty"`
	Type            string `json:"type,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	AgentName       string `json:"agent_name,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
}

func (ServerMessage) frameType() string { return "message" }

// IsWelcome reports whether the message is the server greeting.
func (m ServerMessage) IsWelcome() bool { return m.Type == TypeWelcome }

// ServerUnknown is a well-formed object with nothing the client acts on.
type ServerUnknown struct {
	Type string
	Raw  json.RawMessage
}

func (u ServerUnknown) frameType() string { return u.Type }

// DecodeServerFrame parses one inbound text frame.
//
// Precedence follows the server contract: an error field wins, then
// connection_info, then a non-empty message.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	var envelope struct {
		Type            string  `json:"type"`
		Error           *string `json:"error"`
		Message         *string `json:"message"`
		AgentName       *string `json:"agent_name"`
		AgentPurpose    *string `json:"agent_purpose"`
		ParticipantName *string `json:"participant_name"`
		ConversationID  *string `json:"conversation_id"`
		Sender          *string `json:"sender"`
		Timestamp       *string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.NewProtocolError("invalid json frame", err)
	}

	if envelope.Error != nil && strings.TrimSpace(*envelope.Error) != "" {
		return ServerError{Error: *envelope.Error}, nil
	}

	typ := strings.TrimSpace(envelope.Type)
	if typ == TypeConnectionInfo {
		return ServerConnectionInfo{
			AgentName:       deref(envelope.AgentName),
			AgentPurpose:    deref(envelope.AgentPurpose),
			ParticipantName: deref(envelope.ParticipantName),
			ConversationID:  deref(envelope.ConversationID),
		}, nil
	}

	if envelope.Message != nil && *envelope.Message != "" {
		return ServerMessage{
			Message:         *envelope.Message,
			Sender:          deref(envelope.Sender),
			Type:            typ,
			Timestamp:       deref(envelope.Timestamp),
			AgentName:       deref(envelope.AgentName),
			ParticipantName: deref(envelope.ParticipantName),
		}, nil
	}

	return ServerUnknown{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
}

// EncodeClientMessage validates and serializes an outbound frame.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	if strings.TrimSpace(msg.Message) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("message must not be empty", "message")
	}
	switch msg.Type {
	case TypeText, TypeVoice:
	default:
		return nil, core.NewInvalidRequestErrorWithParam("unsupported message type", "type")
	}
	return json.Marshal(msg)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
