package sqlite

import (
	"time"

	"gorm.io/datatypes"

	"github.com/satriahrh/discute/domain/entities"
)

// LevelRecord is a row of cefr_levels
type LevelRecord struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Code  string `gorm:"column:level_name;uniqueIndex;not null"`
	Label string `gorm:"column:description"`
	Rank  int    `gorm:"column:rank;uniqueIndex;not null"`
}

func (LevelRecord) TableName() string { return "cefr_levels" }

func (r LevelRecord) entity() entities.Level {
	return entities.Level{Code: r.Code, Label: r.Label, Rank: r.Rank}
}

// ProgramRecord is a row of prompt_programs
type ProgramRecord struct {
	ID             uint                        `gorm:"primaryKey;autoIncrement"`
	Name           string                      `gorm:"column:name;not null;index:idx_program_name"`
	Description    string                      `gorm:"column:description"`
	CEFRLevelID    uint                        `gorm:"column:cefr_level_id;not null;index:idx_cefr_level"`
	Level          LevelRecord                 `gorm:"foreignKey:CEFRLevelID;constraint:OnDelete:RESTRICT"`
	PromptTemplate string                      `gorm:"column:prompt_template;not null"`
	Tags           datatypes.JSONSlice[string] `gorm:"column:tags"`
	Difficulty     string                      `gorm:"column:difficulty;default:medium"`
	Kind           string                      `gorm:"column:kind;default:scenario;index"`
	Version        int                         `gorm:"column:version;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ProgramRecord) TableName() string { return "prompt_programs" }

func (r ProgramRecord) entity() entities.Program {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return entities.Program{
		ID:          r.ID,
		LevelCode:   r.Level.Code,
		Name:        r.Name,
		Description: r.Description,
		Template:    r.PromptTemplate,
		Tags:        tags,
		Difficulty:  entities.Difficulty(r.Difficulty),
		Kind:        entities.ProgramKind(r.Kind),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
