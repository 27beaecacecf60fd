package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerMe  Speaker = "me"
	SpeakerYou Speaker = "you"
)

// Turn is one utterance of the conversation
type Turn struct {
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	AudioRef   string    `json:"audio_ref,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Session is the state of one learner visit
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
	Status       SessionStatus `json:"status"`
	State        TurnState     `json:"state"`
	LevelCode    string        `json:"level"`
	ProgramID    uint          `json:"program_id,omitempty"`
	Context      string        `json:"context,omitempty"`
	VoiceID      string        `json:"voice_id,omitempty"`
	Turns        []Turn        `json:"turns"`
	PendingAudio []byte        `json:"pending_audio,omitempty"`
	LastError    string        `json:"last_error,omitempty"`

	RecordingStartedAt time.Time `json:"recording_started_at"`
}

// NewSession creates a new session at the given level
func NewSession(levelCode string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       SessionStatusActive,
		State:        StateIdle,
		LevelCode:    levelCode,
		Turns:        make([]Turn, 0),
	}
}

// AddTurn appends a turn to the conversation
func (s *Session) AddTurn(speaker Speaker, text, audioRef string, durationMs int64) Turn {
	turn := Turn{
		Speaker:    speaker,
		Text:       text,
		AudioRef:   audioRef,
		Timestamp:  time.Now(),
		DurationMs: durationMs,
	}
	s.Turns = append(s.Turns, turn)
	s.UpdateLastActive()
	return turn
}

// LastTurn returns the most recent turn, if any
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// SetTurnAudio attaches an audio reference to the turn at index i
func (s *Session) SetTurnAudio(i int, ref string) {
	if i < 0 || i >= len(s.Turns) {
		return
	}
	s.Turns[i].AudioRef = ref
}

// OwnsAudio reports whether ref belongs to one of the session's turns
func (s *Session) OwnsAudio(ref string) bool {
	if ref == "" {
		return false
	}
	for _, t := range s.Turns {
		if t.AudioRef == ref {
			return true
		}
	}
	return false
}

// StartRecording clears the pending audio buffer
func (s *Session) StartRecording() {
	s.PendingAudio = nil
	s.RecordingStartedAt = time.Now()
}

// AppendPendingAudio adds a recorded chunk to the pending buffer
func (s *Session) AppendPendingAudio(chunk []byte) {
	s.PendingAudio = append(s.PendingAudio, chunk...)
	s.UpdateLastActive()
}

// TakePendingAudio returns and clears the pending buffer
func (s *Session) TakePendingAudio() []byte {
	audio := s.PendingAudio
	s.PendingAudio = nil
	return audio
}

// RecordingDuration is the time spent in the recording state, zero if unknown
func (s *Session) RecordingDuration() time.Duration {
	if s.RecordingStartedAt.IsZero() {
		return 0
	}
	return time.Since(s.RecordingStartedAt)
}

// ChatHistory formats the turns the way prompt templates expect them
func (s *Session) ChatHistory() string {
	lines := make([]string, 0, len(s.Turns))
	for _, t := range s.Turns {
		lines = append(lines, speakerLabel(t.Speaker)+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

func speakerLabel(speaker Speaker) string {
	if speaker == "" {
		return ""
	}
	return strings.ToUpper(string(speaker[:1])) + string(speaker[1:])
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = append(make([]Turn, 0, len(s.Turns)), s.Turns...)
	if s.PendingAudio != nil {
		c.PendingAudio = append([]byte(nil), s.PendingAudio...)
	}
	return &c
}

// UpdateLastActive updates the last active timestamp
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
}

// IsIdleFor reports whether the session saw no activity for at least d
func (s *Session) IsIdleFor(d time.Duration) bool {
	return time.Since(s.LastActiveAt) >= d
}

// IsExpired checks if the session can no longer be used
func (s *Session) IsExpired() bool {
	return s.Status != SessionStatusActive
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.UpdateLastActive()
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}

	return nil
}
