package repositories

import (
	"context"
	"time"

	"github.com/satriahrh/discute/domain/entities"
)

// PromptRepository is the read-only view of the prompt store
type PromptRepository interface {
	ListLevels(ctx context.Context) ([]entities.Level, error)
	GetLevel(ctx context.Context, code string) (*entities.Level, error)
	ListPrograms(ctx context.Context, filter ProgramFilter) ([]entities.Program, error)
	GetProgram(ctx context.Context, id uint) (*entities.Program, error)
	GetProgramByName(ctx context.Context, name string) (*entities.Program, error)
}

// ProgramFilter narrows a program listing. Zero values match everything.
type ProgramFilter struct {
	LevelCode string
	Kind      entities.ProgramKind
}

// SessionRepository defines data access methods for conversation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	Get(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	Delete(ctx context.Context, id string) error
	// ExpireIdle removes sessions idle for longer than maxIdle and returns how many were removed
	ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// AudioStore keeps recorded and synthesized audio referenced by session turns
type AudioStore interface {
	Put(ctx context.Context, sessionID string, audio Audio) (string, error)
	Get(ctx context.Context, ref string) (*Audio, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Audio is a stored audio object
type Audio struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}
