// Package transcript holds the ordered list of conversation turns.
package transcript

import (
	"sync"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

// Store is an append-only, concurrency-safe transcript.
//
// The first welcome turn takes position 0 and any later welcome is
// discarded; every other turn appends in arrival order.
type Store struct {
	mu              sync.RWMutex
	turns           []types.Turn
	welcomePlaced   bool
	haveParticipant bool
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Append adds a non-welcome turn to the end of the transcript.
// Welcome turns are routed through PlaceWelcome.
func (s *Store) Append(turn types.Turn) bool {
	if turn.IsWelcome() {
		return s.PlaceWelcome(turn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if turn.Speaker == types.SpeakerParticipant {
		s.haveParticipant = true
	}
	return true
}

// PlaceWelcome stores the greeting the first time it is called and reports
// whether the turn was kept. Until the participant has said anything the
// greeting replaces the whole transcript; afterwards it is inserted at
// position 0.
func (s *Store) PlaceWelcome(turn types.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.welcomePlaced {
		return false
	}
	s.welcomePlaced = true
	turn.Kind = types.TurnWelcome
	if !s.haveParticipant {
		s.turns = []types.Turn{turn}
		return true
	}
	s.turns = append(s.turns, types.Turn{})
	copy(s.turns[1:], s.turns[:len(s.turns)-1])
	s.turns[0] = turn
	return true
}

// Turns returns a copy of the transcript in display order.
func (s *Store) Turns() []types.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
