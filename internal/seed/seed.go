// Package seed holds the reference data written into the prompt store by
// the seed command: the six CEFR levels and the built-in programs.
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/discute/domain/entities"
)

//go:embed seed.yaml
var defaultSeed []byte

// Data is the decoded seed document
type Data struct {
	Levels   []entities.Level `yaml:"levels"`
	Programs []Program        `yaml:"programs"`
}

// Program is the seed form of a program, referencing its level by code
type Program struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Level       string   `yaml:"level"`
	Kind        string   `yaml:"kind"`
	Difficulty  string   `yaml:"difficulty"`
	Tags        []string `yaml:"tags"`
	Template    string   `yaml:"template"`
}

// Entity converts the seed program into a domain program
func (p Program) Entity() entities.Program {
	difficulty := entities.Difficulty(p.Difficulty)
	if difficulty == "" {
		difficulty = entities.DifficultyMedium
	}
	kind := entities.ProgramKind(p.Kind)
	if kind == "" {
		kind = entities.ProgramKindScenario
	}
	return entities.Program{
		LevelCode:   p.Level,
		Name:        p.Name,
		Description: p.Description,
		Template:    p.Template,
		Tags:        p.Tags,
		Difficulty:  difficulty,
		Kind:        kind,
		Version:     1,
	}
}

// Default returns the embedded seed data
func Default() (*Data, error) {
	return Parse(defaultSeed)
}

// Parse decodes and validates a seed document
func Parse(raw []byte) (*Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seed data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks that every program references a declared level
func (d *Data) Validate() error {
	levels := make(map[string]bool, len(d.Levels))
	ranks := make(map[int]string, len(d.Levels))
	for i := range d.Levels {
		level := d.Levels[i]
		if err := level.Validate(); err != nil {
			return fmt.Errorf("level %d: %w", i, err)
		}
		if levels[level.Code] {
			return fmt.Errorf("duplicate level %s", level.Code)
		}
		if other, ok := ranks[level.Rank]; ok {
			return fmt.Errorf("levels %s and %s share rank %d", other, level.Code, level.Rank)
		}
		levels[level.Code] = true
		ranks[level.Rank] = level.Code
	}

	names := make(map[string]bool, len(d.Programs))
	for _, p := range d.Programs {
		program := p.Entity()
		if err := program.Validate(); err != nil {
			return fmt.Errorf("program %q: %w", p.Name, err)
		}
		if !levels[p.Level] {
			return fmt.Errorf("program %q references unknown level %s", p.Name, p.Level)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate program %q", p.Name)
		}
		names[p.Name] = true
	}
	return nil
}
