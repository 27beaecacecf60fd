package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
	"github.com/satriahrh/discute/internal/seed"
)

func seededStore(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "prompts.db")

	client, err := NewClient(Options{Path: path, Quiet: true}, logger)
	require.NoError(t, err)
	defer client.Close()

	data, err := seed.Default()
	require.NoError(t, err)

	_, err = NewSeeder(client, logger).Seed(context.Background(), data, false)
	require.NoError(t, err)
	return path
}

func openReadOnly(t *testing.T, path string) *PromptRepository {
	t.Helper()
	client, err := NewClient(Options{Path: path, ReadOnly: true, Quiet: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewPromptRepository(client)
}

func TestSeedIsIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "prompts.db")

	client, err := NewClient(Options{Path: path, Quiet: true}, logger)
	require.NoError(t, err)
	defer client.Close()

	data, err := seed.Default()
	require.NoError(t, err)

	seeder := NewSeeder(client, logger)
	first, err := seeder.Seed(context.Background(), data, false)
	require.NoError(t, err)
	assert.Equal(t, 6, first.LevelsCreated)
	assert.Equal(t, len(data.Programs), first.ProgramsCreated)

	second, err := seeder.Seed(context.Background(), data, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.LevelsCreated)
	assert.Equal(t, 0, second.ProgramsCreated)
	assert.Equal(t, len(data.Programs), second.ProgramsSkipped)

	reset, err := seeder.Seed(context.Background(), data, true)
	require.NoError(t, err)
	assert.Equal(t, 6, reset.LevelsCreated)
	assert.Equal(t, len(data.Programs), reset.ProgramsCreated)

	var count int64
	require.NoError(t, client.DB.Model(&ProgramRecord{}).Count(&count).Error)
	assert.Equal(t, int64(len(data.Programs)), count)
}

func TestListLevelsOrderedByRank(t *testing.T) {
	repo := openReadOnly(t, seededStore(t))

	levels, err := repo.ListLevels(context.Background())
	require.NoError(t, err)

	want := []entities.Level{
		{Code: "A1", Label: "Beginner", Rank: 1},
		{Code: "A2", Label: "Elementary", Rank: 2},
		{Code: "B1", Label: "Intermediate", Rank: 3},
		{Code: "B2", Label: "Upper Intermediate", Rank: 4},
		{Code: "C1", Label: "Advanced", Rank: 5},
		{Code: "C2", Label: "Proficient", Rank: 6},
	}
	if diff := cmp.Diff(want, levels); diff != "" {
		t.Errorf("ListLevels() mismatch (-want +got):\n%s", diff)
	}
}

func TestListProgramsFilteredByLevel(t *testing.T) {
	repo := openReadOnly(t, seededStore(t))
	ctx := context.Background()

	programs, err := repo.ListPrograms(ctx, repositories.ProgramFilter{LevelCode: "B1"})
	require.NoError(t, err)
	require.NotEmpty(t, programs)
	for _, p := range programs {
		assert.Equal(t, "B1", p.LevelCode)
		assert.NotEmpty(t, p.Template)
	}

	scenarios, err := repo.ListPrograms(ctx, repositories.ProgramFilter{LevelCode: "B1", Kind: entities.ProgramKindScenario})
	require.NoError(t, err)
	for _, p := range scenarios {
		assert.Equal(t, entities.ProgramKindScenario, p.Kind)
	}
	assert.Less(t, len(scenarios), len(programs))
}

func TestListProgramsDeterministicOrder(t *testing.T) {
	repo := openReadOnly(t, seededStore(t))
	ctx := context.Background()

	first, err := repo.ListPrograms(ctx, repositories.ProgramFilter{})
	require.NoError(t, err)
	second, err := repo.ListPrograms(ctx, repositories.ProgramFilter{})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ListPrograms() not deterministic (-first +second):\n%s", diff)
	}

	rank := map[string]int{"A1": 1, "A2": 2, "B1": 3, "B2": 4, "C1": 5, "C2": 6}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if rank[prev.LevelCode] > rank[cur.LevelCode] {
			t.Errorf("program %q (%s) listed before %q (%s)", prev.Name, prev.LevelCode, cur.Name, cur.LevelCode)
		}
		if prev.LevelCode == cur.LevelCode && prev.Name > cur.Name {
			t.Errorf("program %q listed before %q within %s", prev.Name, cur.Name, cur.LevelCode)
		}
	}
}

func TestNotFoundErrors(t *testing.T) {
	repo := openReadOnly(t, seededStore(t))
	ctx := context.Background()

	_, err := repo.GetLevel(ctx, "Z9")
	assert.ErrorIs(t, err, domain.ErrLevelNotFound)

	_, err = repo.ListPrograms(ctx, repositories.ProgramFilter{LevelCode: "Z9"})
	assert.ErrorIs(t, err, domain.ErrLevelNotFound)

	_, err = repo.GetProgram(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)

	_, err = repo.GetProgramByName(ctx, "No Such Program")
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)
}

func TestGetProgramRoundTrip(t *testing.T) {
	repo := openReadOnly(t, seededStore(t))
	ctx := context.Background()

	all, err := repo.ListPrograms(ctx, repositories.ProgramFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, all)

	byID, err := repo.GetProgram(ctx, all[0].ID)
	require.NoError(t, err)
	byName, err := repo.GetProgramByName(ctx, all[0].Name)
	require.NoError(t, err)

	assert.Equal(t, all[0].Name, byID.Name)
	assert.Equal(t, byID.ID, byName.ID)
	assert.Equal(t, all[0].LevelCode, byID.LevelCode)
}

func TestProgramLevelForeignKey(t *testing.T) {
	logger := zaptest.NewLogger(t)
	client, err := NewClient(Options{Path: filepath.Join(t.TempDir(), "fk.db"), Quiet: true}, logger)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Migrate(context.Background()))

	err = client.DB.Create(&ProgramRecord{
		Name:           "Dangling",
		CEFRLevelID:    42,
		PromptTemplate: "{{.ChatHistory}}",
		Difficulty:     "easy",
		Kind:           "scenario",
		Version:        1,
	}).Error
	assert.Error(t, err)
}

func TestReadOnlyMissingStore(t *testing.T) {
	_, err := NewClient(Options{Path: filepath.Join(t.TempDir(), "missing.db"), ReadOnly: true}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed")
}

func TestReadOnlyUnseededStore(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.db")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := NewClient(Options{Path: path, ReadOnly: true, Quiet: true}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run the seed command first")
	})

	t.Run("tables without rows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.db")
		client, err := NewClient(Options{Path: path, Quiet: true}, logger)
		require.NoError(t, err)
		require.NoError(t, client.Migrate(context.Background()))
		require.NoError(t, client.Close())

		_, err = NewClient(Options{Path: path, ReadOnly: true, Quiet: true}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not seeded")
	})
}
