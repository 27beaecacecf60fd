package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

// PromptRepository serves the seeded levels and programs
type PromptRepository struct {
	db *gorm.DB
}

var _ repositories.PromptRepository = (*PromptRepository)(nil)

// NewPromptRepository creates a new read-only prompt repository
func NewPromptRepository(client *Client) *PromptRepository {
	return &PromptRepository{db: client.DB}
}

// ListLevels returns every level ordered by proficiency
func (r *PromptRepository) ListLevels(ctx context.Context) ([]entities.Level, error) {
	var records []LevelRecord
	if err := r.db.WithContext(ctx).Order("rank ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}

	levels := make([]entities.Level, 0, len(records))
	for _, rec := range records {
		levels = append(levels, rec.entity())
	}
	return levels, nil
}

// GetLevel implements repositories.PromptRepository
func (r *PromptRepository) GetLevel(ctx context.Context, code string) (*entities.Level, error) {
	rec, err := r.levelRecord(ctx, code)
	if err != nil {
		return nil, err
	}
	level := rec.entity()
	return &level, nil
}

func (r *PromptRepository) levelRecord(ctx context.Context, code string) (*LevelRecord, error) {
	var rec LevelRecord
	err := r.db.WithContext(ctx).Where("level_name = ?", code).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLevelNotFound, code)
		}
		return nil, fmt.Errorf("failed to get level %s: %w", code, err)
	}
	return &rec, nil
}

// ListPrograms returns programs ordered by level rank, then name
func (r *PromptRepository) ListPrograms(ctx context.Context, filter repositories.ProgramFilter) ([]entities.Program, error) {
	q := r.db.WithContext(ctx).
		Preload("Level").
		Joins("JOIN cefr_levels ON cefr_levels.id = prompt_programs.cefr_level_id").
		Order("cefr_levels.rank ASC, prompt_programs.name ASC")

	if filter.LevelCode != "" {
		level, err := r.levelRecord(ctx, filter.LevelCode)
		if err != nil {
			return nil, err
		}
		q = q.Where("prompt_programs.cefr_level_id = ?", level.ID)
	}
	if filter.Kind != "" {
		q = q.Where("prompt_programs.kind = ?", string(filter.Kind))
	}

	var records []ProgramRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}

	programs := make([]entities.Program, 0, len(records))
	for _, rec := range records {
		programs = append(programs, rec.entity())
	}
	return programs, nil
}

// GetProgram implements repositories.PromptRepository
func (r *PromptRepository) GetProgram(ctx context.Context, id uint) (*entities.Program, error) {
	return r.findProgram(ctx, fmt.Sprintf("id %d", id), "prompt_programs.id = ?", id)
}

// GetProgramByName implements repositories.PromptRepository
func (r *PromptRepository) GetProgramByName(ctx context.Context, name string) (*entities.Program, error) {
	return r.findProgram(ctx, fmt.Sprintf("%q", name), "prompt_programs.name = ?", name)
}

func (r *PromptRepository) findProgram(ctx context.Context, desc string, query string, arg interface{}) (*entities.Program, error) {
	var rec ProgramRecord
	err := r.db.WithContext(ctx).Preload("Level").Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, desc)
		}
		return nil, fmt.Errorf("failed to get program %s: %w", desc, err)
	}
	program := rec.entity()
	return &program, nil
}
