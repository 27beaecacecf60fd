package api

import (
	"time"

	"github.com/satriahrh/discute/domain/entities"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LevelsResponse lists the CEFR levels
type LevelsResponse struct {
	Levels []entities.Level `json:"levels"`
}

// ProgramsResponse lists program summaries
type ProgramsResponse struct {
	Programs []entities.Program `json:"programs"`
}

// VoicesResponse lists the voices of the speech provider
type VoicesResponse struct {
	Voices interface{} `json:"voices"`
}

// CreateSessionRequest represents the request payload for starting a session
type CreateSessionRequest struct {
	Level string `json:"level"`
}

// CreateSessionResponse carries the new session and the token that unlocks it
type CreateSessionResponse struct {
	Session   SessionResponse `json:"session"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// TokenResponse carries a reissued session token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpdateSettingsRequest changes the selections of a session. Absent fields are left as they are.
type UpdateSettingsRequest struct {
	Level     string  `json:"level,omitempty"`
	ProgramID uint    `json:"program_id,omitempty"`
	Context   *string `json:"context,omitempty"`
	VoiceID   *string `json:"voice_id,omitempty"`
}

// SessionResponse is the public view of a session
type SessionResponse struct {
	ID           string             `json:"id"`
	Level        string             `json:"level"`
	ProgramID    uint               `json:"program_id,omitempty"`
	Context      string             `json:"context,omitempty"`
	VoiceID      string             `json:"voice_id,omitempty"`
	State        entities.TurnState `json:"state"`
	Turns        []TurnResponse     `json:"turns"`
	LastError    string             `json:"last_error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActiveAt time.Time          `json:"last_active_at"`
}

// TurnResponse is one turn with a playable audio link
type TurnResponse struct {
	entities.Turn
	AudioURL string `json:"audio_url,omitempty"`
}

// TurnResultResponse is the outcome of a submitted turn
type TurnResultResponse struct {
	Session     SessionResponse `json:"session"`
	User        TurnResponse    `json:"user"`
	Reply       TurnResponse    `json:"reply"`
	SpeechError string          `json:"speech_error,omitempty"`
}

// ReviewResponse carries the coach's feedback
type ReviewResponse struct {
	Feedback string          `json:"feedback"`
	Session  SessionResponse `json:"session"`
}

func newTurnResponse(sessionID string, t entities.Turn) TurnResponse {
	resp := TurnResponse{Turn: t}
	if t.AudioRef != "" {
		resp.AudioURL = "/api/v1/sessions/" + sessionID + "/audio/" + t.AudioRef
	}
	return resp
}

func newSessionResponse(s *entities.Session) SessionResponse {
	turns := make([]TurnResponse, 0, len(s.Turns))
	for _, t := range s.Turns {
		turns = append(turns, newTurnResponse(s.ID, t))
	}
	state := s.State
	if state == "" {
		state = entities.StateIdle
	}
	return SessionResponse{
		ID:           s.ID,
		Level:        s.LevelCode,
		ProgramID:    s.ProgramID,
		Context:      s.Context,
		VoiceID:      s.VoiceID,
		State:        state,
		Turns:        turns,
		LastError:    s.LastError,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
}
