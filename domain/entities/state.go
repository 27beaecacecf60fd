package entities

import (
	"fmt"

	"github.com/satriahrh/discute/domain"
)

// TurnState is the position of a session in the per-turn flow
type TurnState string

const (
	StateIdle             TurnState = "idle"
	StateRecording        TurnState = "recording"
	StateTranscribing     TurnState = "transcribing"
	StateAwaitingResponse TurnState = "awaiting_response"
	StateSpeaking         TurnState = "speaking"
	StateReviewing        TurnState = "reviewing"
)

var transitions = map[TurnState][]TurnState{
	StateIdle:             {StateRecording, StateReviewing},
	StateRecording:        {StateTranscribing},
	StateTranscribing:     {StateAwaitingResponse},
	StateAwaitingResponse: {StateSpeaking},
	StateSpeaking:         {StateIdle},
	StateReviewing:        {StateIdle},
}

// CanTransition reports whether the flow allows moving from s to next.
// Returning to idle is always allowed so a failed step can abort the turn.
func (s TurnState) CanTransition(next TurnState) bool {
	if next == StateIdle {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the session to next, or fails with domain.ErrInvalidTransition
func (s *Session) Transition(next TurnState) error {
	current := s.State
	if current == "" {
		current = StateIdle
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, next)
	}
	s.State = next
	s.UpdateLastActive()
	return nil
}

// Busy reports whether a turn or review is in flight
func (s *Session) Busy() bool {
	return s.State != "" && s.State != StateIdle
}
