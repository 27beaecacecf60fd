package usecase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

// PromptVars are the values a program template may reference
type PromptVars struct {
	Context      string
	ChatHistory  string
	Conversation string
}

func (v PromptVars) data() map[string]string {
	return map[string]string{
		"Context":      v.Context,
		"ChatHistory":  v.ChatHistory,
		"Conversation": v.Conversation,
	}
}

// PromptManager is the read-only façade over the prompt store
type PromptManager struct {
	repo   repositories.PromptRepository
	logger *zap.Logger
}

// NewPromptManager creates a new prompt manager
func NewPromptManager(repo repositories.PromptRepository, logger *zap.Logger) *PromptManager {
	return &PromptManager{repo: repo, logger: logger}
}

// ListLevels returns all CEFR levels ordered by proficiency
func (m *PromptManager) ListLevels(ctx context.Context) ([]entities.Level, error) {
	return m.repo.ListLevels(ctx)
}

// GetLevel returns one level by code
func (m *PromptManager) GetLevel(ctx context.Context, code string) (*entities.Level, error) {
	return m.repo.GetLevel(ctx, code)
}

// ListProgramsByLevel returns the programs of one level ordered by name. An
// empty kind returns every kind.
func (m *PromptManager) ListProgramsByLevel(ctx context.Context, levelCode string, kind entities.ProgramKind) ([]entities.Program, error) {
	return m.repo.ListPrograms(ctx, repositories.ProgramFilter{LevelCode: levelCode, Kind: kind})
}

// ListPrograms returns every program ordered by level rank, then name
func (m *PromptManager) ListPrograms(ctx context.Context) ([]entities.Program, error) {
	return m.repo.ListPrograms(ctx, repositories.ProgramFilter{})
}

// GetProgram returns the full program, template included
func (m *PromptManager) GetProgram(ctx context.Context, id uint) (*entities.Program, error) {
	return m.repo.GetProgram(ctx, id)
}

// GetProgramByName looks a program up by its title
func (m *PromptManager) GetProgramByName(ctx context.Context, name string) (*entities.Program, error) {
	return m.repo.GetProgramByName(ctx, name)
}

// ProgramNamesByLevel returns the scenario titles offered for a level
func (m *PromptManager) ProgramNamesByLevel(ctx context.Context, levelCode string) ([]string, error) {
	programs, err := m.ListProgramsByLevel(ctx, levelCode, entities.ProgramKindScenario)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(programs))
	for _, p := range programs {
		names = append(names, p.Name)
	}
	return names, nil
}

// DefaultProgram returns the first scenario of a level by name
func (m *PromptManager) DefaultProgram(ctx context.Context, levelCode string) (*entities.Program, error) {
	programs, err := m.ListProgramsByLevel(ctx, levelCode, entities.ProgramKindScenario)
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoProgramSelected, levelCode)
	}
	return &programs[0], nil
}

// RenderPrompt fills the program template with vars. In strict mode a
// reference to an unknown variable fails with domain.ErrMissingVariable;
// otherwise any failure logs a warning and returns the raw template.
func (m *PromptManager) RenderPrompt(program *entities.Program, vars PromptVars, strict bool) (string, error) {
	out, err := renderTemplate(program.Name, program.Template, vars)
	if err == nil {
		return out, nil
	}
	if strict {
		return "", err
	}
	m.logger.Warn("Prompt rendering failed, using raw template",
		zap.String("program", program.Name),
		zap.Error(err))
	return program.Template, nil
}

func renderTemplate(name, text string, vars PromptVars) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars.data()); err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", fmt.Errorf("%w: %v", domain.ErrMissingVariable, err)
		}
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// CoachProgramName maps a level to the coach prompt of its band
func CoachProgramName(levelCode string) string {
	switch strings.ToUpper(levelCode) {
	case "B1", "B2":
		return "English Coach B1-B2"
	case "C1", "C2":
		return "English Coach C1-C2"
	default:
		return "English Coach A1-A2"
	}
}

// CoachPrompt renders the review prompt for the level's coach program
func (m *PromptManager) CoachPrompt(ctx context.Context, levelCode string, vars PromptVars) (string, error) {
	program, err := m.GetProgramByName(ctx, CoachProgramName(levelCode))
	if err != nil {
		return "", err
	}
	return m.RenderPrompt(program, vars, true)
}
