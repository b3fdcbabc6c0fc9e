package types

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerParticipant Speaker = "participant"
	SpeakerAgent       Speaker = "agent"
)

// Modality is how a turn was produced.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
)

// TurnKind distinguishes the server greeting from ordinary turns.
type TurnKind string

const (
	TurnNormal  TurnKind = "normal"
	TurnWelcome TurnKind = "welcome"
)

// Turn is one message in the conversation transcript. Turns are immutable
// once appended.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Modality  Modality  `json:"modality"`
	Kind      TurnKind  `json:"kind"`
}

// NewParticipantTurn builds a participant turn stamped at now.
func NewParticipantTurn(text string, modality Modality, now time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerParticipant,
		Text:      text,
		Timestamp: now,
		Modality:  modality,
		Kind:      TurnNormal,
	}
}

// NewAgentTurn builds an agent turn stamped at now.
func NewAgentTurn(text string, kind TurnKind, now time.Time) Turn {
	if kind == "" {
		kind = TurnNormal
	}
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAgent,
		Text:      text,
		Timestamp: now,
		Modality:  ModalityText,
		Kind:      kind,
	}
}

// IsWelcome reports whether the turn is the server greeting.
func (t Turn) IsWelcome() bool { return t.Kind == TurnWelcome }
