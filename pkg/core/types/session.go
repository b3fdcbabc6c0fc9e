package types

import "time"

// ConnectionStatus is the state of the conversation socket.
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusOpen       ConnectionStatus = "open"
	StatusClosed     ConnectionStatus = "closed"
)

// Session describes one conversation between a participant and an agent.
// Empty names mean the server has not reported them yet.
type Session struct {
	ID              string           `json:"id"`
	AgentName       string           `json:"agent_name,omitempty"`
	AgentPurpose    string           `json:"agent_purpose,omitempty"`
	ParticipantName string           `json:"participant_name,omitempty"`
	ConversationID  string           `json:"conversation_id,omitempty"`
	Status          ConnectionStatus `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
}

// NewSession returns a session in the connecting state.
func NewSession(id, agentName string, startedAt time.Time) Session {
	return Session{
		ID:        id,
		AgentName: agentName,
		Status:    StatusConnecting,
		StartedAt: startedAt,
	}
}

// SetNames replaces the names with any non-empty argument.
func (s *Session) SetNames(agent, participant string) {
	if agent != "" {
		s.AgentName = agent
	}
	if participant != "" {
		s.ParticipantName = participant
	}
}

// ApplyNames fills names that are still unset. Empty arguments are ignored.
func (s *Session) ApplyNames(agent, participant string) {
	if s.AgentName == "" && agent != "" {
		s.AgentName = agent
	}
	if s.ParticipantName == "" && participant != "" {
		s.ParticipantName = participant
	}
}

// Summary is the end-of-session digest.
type Summary struct {
	ParticipantName  string        `json:"participant_name"`
	AgentName        string        `json:"agent_name"`
	DurationMinutes  int           `json:"duration_minutes"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	TotalTurns       int           `json:"total_turns"`
	ParticipantTurns int           `json:"participant_turns"`
	AgentTurns       int           `json:"agent_turns"`
	KeyTopics        []TopicCount  `json:"key_topics"`
	Preview          []TurnPreview `json:"preview"`
	Turns            []Turn        `json:"turns"`
}

// TopicCount is a keyword and how many times the participant used it.
type TopicCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// TurnPreview is a truncated view of an early turn.
type TurnPreview struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}
