package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/discute/adapters/llm"
	"github.com/satriahrh/discute/adapters/memory"
	"github.com/satriahrh/discute/adapters/stt"
	"github.com/satriahrh/discute/adapters/tts"
	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
	"github.com/satriahrh/discute/internal/seed"
)

// seedRepository serves the embedded seed data from memory
type seedRepository struct {
	levels   []entities.Level
	programs []entities.Program
}

func newSeedRepository(t *testing.T) *seedRepository {
	t.Helper()
	data, err := seed.Default()
	require.NoError(t, err)

	repo := &seedRepository{levels: data.Levels}
	for i, p := range data.Programs {
		program := p.Entity()
		program.ID = uint(i + 1)
		repo.programs = append(repo.programs, program)
	}

	rank := repo.rank()
	sort.SliceStable(repo.programs, func(i, j int) bool {
		a, b := repo.programs[i], repo.programs[j]
		if rank[a.LevelCode] != rank[b.LevelCode] {
			return rank[a.LevelCode] < rank[b.LevelCode]
		}
		return a.Name < b.Name
	})
	return repo
}

func (r *seedRepository) rank() map[string]int {
	rank := make(map[string]int, len(r.levels))
	for _, l := range r.levels {
		rank[l.Code] = l.Rank
	}
	return rank
}

func (r *seedRepository) ListLevels(ctx context.Context) ([]entities.Level, error) {
	return append([]entities.Level(nil), r.levels...), nil
}

func (r *seedRepository) GetLevel(ctx context.Context, code string) (*entities.Level, error) {
	for _, l := range r.levels {
		if l.Code == code {
			level := l
			return &level, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrLevelNotFound, code)
}

func (r *seedRepository) ListPrograms(ctx context.Context, filter repositories.ProgramFilter) ([]entities.Program, error) {
	if filter.LevelCode != "" {
		if _, err := r.GetLevel(ctx, filter.LevelCode); err != nil {
			return nil, err
		}
	}
	var out []entities.Program
	for _, p := range r.programs {
		if filter.LevelCode != "" && p.LevelCode != filter.LevelCode {
			continue
		}
		if filter.Kind != "" && p.Kind != filter.Kind {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *seedRepository) GetProgram(ctx context.Context, id uint) (*entities.Program, error) {
	for _, p := range r.programs {
		if p.ID == id {
			program := p
			return &program, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", domain.ErrProgramNotFound, id)
}

func (r *seedRepository) GetProgramByName(ctx context.Context, name string) (*entities.Program, error) {
	for _, p := range r.programs {
		if p.Name == name {
			program := p
			return &program, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrProgramNotFound, name)
}

type fixture struct {
	service  *ConversationService
	prompts  *PromptManager
	sessions *memory.SessionRepository
	llm      *llm.MockLLM
	stt      *stt.MockSpeechToText
	tts      *tts.MockTextToSpeech
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	prompts := NewPromptManager(newSeedRepository(t), logger)
	f := &fixture{
		prompts:  prompts,
		sessions: memory.NewSessionRepository(),
		llm:      llm.NewMockLLM("Nice to meet you! Where are you from?"),
		stt:      stt.NewMockSpeechToText(logger),
		tts:      tts.NewMockTextToSpeech(logger),
	}
	f.stt.Text = "Hello, my name is Ana."

	f.service = NewConversationService(
		f.sessions,
		memory.NewAudioStore(),
		prompts,
		NewChatService(f.llm, prompts, logger),
		f.stt,
		f.tts,
		ConversationConfig{MaxAudioBytes: 1 << 16},
		logger,
	)
	return f
}

// gatedSpeech blocks Synthesize until release is closed
type gatedSpeech struct {
	started chan struct{}
	release chan struct{}
}

func newGatedSpeech() *gatedSpeech {
	return &gatedSpeech{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedSpeech) Synthesize(ctx context.Context, text, voiceID string) (repositories.Speech, error) {
	g.started <- struct{}{}
	<-g.release
	return repositories.Speech{Audio: []byte{1, 2, 3}, MIMEType: "audio/mpeg"}, nil
}

// trackedAudio remembers every ref it hands out
type trackedAudio struct {
	*memory.AudioStore
	mu   sync.Mutex
	refs []string
}

func (a *trackedAudio) Put(ctx context.Context, sessionID string, audio repositories.Audio) (string, error) {
	ref, err := a.AudioStore.Put(ctx, sessionID, audio)
	if err == nil {
		a.mu.Lock()
		a.refs = append(a.refs, ref)
		a.mu.Unlock()
	}
	return ref, err
}

// live returns the refs that can still be read
func (a *trackedAudio) live(ctx context.Context) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, ref := range a.refs {
		if _, err := a.AudioStore.Get(ctx, ref); err == nil {
			out = append(out, ref)
		}
	}
	return out
}
