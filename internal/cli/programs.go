package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satriahrh/discute/adapters/sqlite"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/usecase"
)

func newProgramsCommand(v *viper.Viper, flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "List the levels and programs in the prompt store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			kind := entities.ProgramKind(strings.ToLower(flags.Kind))
			switch kind {
			case "", entities.ProgramKindScenario, entities.ProgramKindCoach:
			default:
				return fmt.Errorf("unknown program kind %q", flags.Kind)
			}

			client, err := sqlite.NewClient(sqlite.Options{Path: cfg.Store.Path, ReadOnly: true, Quiet: true}, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			prompts := usecase.NewPromptManager(sqlite.NewPromptRepository(client), logger)
			return printPrograms(cmd, prompts, strings.ToUpper(flags.Level), kind)
		},
	}

	cmd.Flags().StringVarP(&flags.Level, "level", "l", "", "Only list this CEFR level")
	cmd.Flags().StringVar(&flags.Kind, "kind", "", "Only list scenario or coach programs")
	return cmd
}

func printPrograms(cmd *cobra.Command, prompts *usecase.PromptManager, levelCode string, kind entities.ProgramKind) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var levels []entities.Level
	if levelCode != "" {
		level, err := prompts.GetLevel(ctx, levelCode)
		if err != nil {
			return err
		}
		levels = []entities.Level{*level}
	} else {
		all, err := prompts.ListLevels(ctx)
		if err != nil {
			return err
		}
		levels = all
	}

	for _, level := range levels {
		programs, err := prompts.ListProgramsByLevel(ctx, level.Code, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s\n", level.Code, level.Label)
		writePrograms(out, programs)
	}
	return nil
}

func writePrograms(out io.Writer, programs []entities.Program) {
	if len(programs) == 0 {
		fmt.Fprintln(out, "  (no programs)")
		return
	}
	for _, p := range programs {
		fmt.Fprintf(out, "  %3d  %-8s %-6s %s\n", p.ID, p.Kind, p.Difficulty, p.Name)
	}
}
