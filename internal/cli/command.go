package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/internal/config"
)

// Version is set at build time with -ldflags
var Version = "dev"

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "discute",
		Short: "Spoken English practice with an AI conversation partner",
		Long: `discute runs a voice conversation practice server. The learner picks a
CEFR level and a scenario, speaks, and hears the assistant answer in character.

Examples:
  discute seed                    # Build prompts.db from the bundled programs
  discute serve                   # Start the practice server on :8080
  discute programs --level B1     # List the programs of one level`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, flags)
	bindFlagsToViper(v, rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCommand(v, flags),
		newSeedCommand(v, flags),
		newProgramsCommand(v, flags),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is ./discute.yaml or $HOME/discute.yaml)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.DBPath, "db", "", "path of the SQLite prompt store (default prompts.db)")
}

func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	v.BindPFlag("log.level", fs.Lookup("log-level"))
	v.BindPFlag("store.path", fs.Lookup("db"))
}

// loadConfig reads the configuration once flags have been parsed
func loadConfig(v *viper.Viper, flags *Flags) (*config.Config, error) {
	cfg, err := config.Load(v, flags.CfgFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// setup loads the config and logger shared by every subcommand
func setup(v *viper.Viper, flags *Flags) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(v, flags)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
