package entities

import (
	"errors"
	"time"
)

// Difficulty is the coarse difficulty rating of a program
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ProgramKind separates conversation scenarios from coach review prompts
type ProgramKind string

const (
	ProgramKindScenario ProgramKind = "scenario"
	ProgramKindCoach    ProgramKind = "coach"
)

// Level is a CEFR proficiency level
type Level struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
	Rank  int    `json:"rank" yaml:"rank"`
}

// Program is a pre-authored conversation scenario tagged to a CEFR level
type Program struct {
	ID          uint        `json:"id"`
	LevelCode   string      `json:"level"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Template    string      `json:"template,omitempty"`
	Tags        []string    `json:"tags"`
	Difficulty  Difficulty  `json:"difficulty"`
	Kind        ProgramKind `json:"kind"`
	Version     int         `json:"version"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Domain validation methods
func (l *Level) Validate() error {
	if l.Code == "" {
		return errors.New("level code is required")
	}
	if l.Label == "" {
		return errors.New("level label is required")
	}
	if l.Rank <= 0 {
		return errors.New("level rank must be positive")
	}
	return nil
}

func (p *Program) Validate() error {
	if p.Name == "" {
		return errors.New("program name is required")
	}
	if p.LevelCode == "" {
		return errors.New("program level is required")
	}
	if p.Template == "" {
		return errors.New("program template is required")
	}
	switch p.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return errors.New("invalid program difficulty")
	}
	switch p.Kind {
	case ProgramKindScenario, ProgramKindCoach:
	default:
		return errors.New("invalid program kind")
	}
	return nil
}

// Summary returns a copy of the program without its template
func (p Program) Summary() Program {
	p.Template = ""
	return p
}
