package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/adapters/sqlite"
	"github.com/satriahrh/discute/internal/seed"
)

func newSeedCommand(v *viper.Viper, flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the prompt store and load the bundled levels and programs",
		Long: `seed writes the CEFR levels and conversation programs into the SQLite
prompt store. Running it again only adds what is missing; --reset empties the
store first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			data, err := seed.Default()
			if err != nil {
				return fmt.Errorf("failed to load bundled programs: %w", err)
			}

			client, err := sqlite.NewClient(sqlite.Options{Path: cfg.Store.Path, Quiet: !cfg.Log.Development}, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := sqlite.NewSeeder(client, logger).Seed(cmd.Context(), data, flags.Reset)
			if err != nil {
				return err
			}

			logger.Info("Prompt store seeded",
				zap.String("path", cfg.Store.Path),
				zap.Int("levelsCreated", result.LevelsCreated),
				zap.Int("programsCreated", result.ProgramsCreated),
				zap.Int("programsSkipped", result.ProgramsSkipped))
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s: %d levels, %d programs created, %d already present\n",
				cfg.Store.Path, result.LevelsCreated, result.ProgramsCreated, result.ProgramsSkipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.Reset, "reset", false, "Empty the store before seeding")
	return cmd
}
