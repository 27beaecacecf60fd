package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/satriahrh/discute/internal/seed"
)

// SeedResult reports what a seeding run wrote
type SeedResult struct {
	LevelsCreated   int
	ProgramsCreated int
	ProgramsSkipped int
}

// Seeder writes reference data into a writable prompt store
type Seeder struct {
	client *Client
	logger *zap.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(client *Client, logger *zap.Logger) *Seeder {
	return &Seeder{client: client, logger: logger}
}

// Seed creates the schema and inserts levels and programs. Existing levels and
// programs with the same name are left untouched unless reset is set, in which
// case both tables are emptied first.
func (s *Seeder) Seed(ctx context.Context, data *seed.Data, reset bool) (SeedResult, error) {
	var result SeedResult

	if err := s.client.Migrate(ctx); err != nil {
		return result, err
	}

	err := s.client.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if reset {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ProgramRecord{}).Error; err != nil {
				return fmt.Errorf("failed to clear programs: %w", err)
			}
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LevelRecord{}).Error; err != nil {
				return fmt.Errorf("failed to clear levels: %w", err)
			}
			s.logger.Info("Cleared prompt store before seeding")
		}

		levelIDs := make(map[string]uint, len(data.Levels))
		for _, level := range data.Levels {
			rec := LevelRecord{Code: level.Code, Label: level.Label, Rank: level.Rank}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "level_name"}},
				DoNothing: true,
			}).Create(&rec)
			if res.Error != nil {
				return fmt.Errorf("failed to insert level %s: %w", level.Code, res.Error)
			}
			result.LevelsCreated += int(res.RowsAffected)

			var stored LevelRecord
			if err := tx.Where("level_name = ?", level.Code).First(&stored).Error; err != nil {
				return fmt.Errorf("failed to load level %s: %w", level.Code, err)
			}
			levelIDs[level.Code] = stored.ID
		}

		for _, p := range data.Programs {
			var count int64
			if err := tx.Model(&ProgramRecord{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check program %q: %w", p.Name, err)
			}
			if count > 0 {
				result.ProgramsSkipped++
				continue
			}

			levelID, ok := levelIDs[p.Level]
			if !ok {
				return fmt.Errorf("program %q references unknown level %s", p.Name, p.Level)
			}

			program := p.Entity()
			rec := ProgramRecord{
				Name:           program.Name,
				Description:    program.Description,
				CEFRLevelID:    levelID,
				PromptTemplate: program.Template,
				Tags:           datatypes.JSONSlice[string](program.Tags),
				Difficulty:     string(program.Difficulty),
				Kind:           string(program.Kind),
				Version:        program.Version,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to insert program %q: %w", p.Name, err)
			}
			result.ProgramsCreated++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	s.logger.Info("Seeded prompt store",
		zap.Int("levelsCreated", result.LevelsCreated),
		zap.Int("programsCreated", result.ProgramsCreated),
		zap.Int("programsSkipped", result.ProgramsSkipped))

	return result, nil
}
