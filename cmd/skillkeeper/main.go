package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/makgunay/claude-swift-skills/pkg/config"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/presenter"
)

var (
	cfg             *config.Config
	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "skillkeeper",
	Short: "Ingest Swift and SwiftUI notes into a curated skill knowledge base",
	Long: `skillkeeper classifies incoming documents into knowledge entries, extracts
version-tagged patterns, constraints, decision rules and references, merges
them without duplicating or contradicting what is already known, and writes
each entry as a SKILL.md document.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded

		logger.SetLogOutput(os.Stderr)
		if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}

		shutdownTracing, err = initTracing(cmd.Context())
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if shutdownTracing == nil {
			return nil
		}
		return shutdownTracing(cmd.Context())
	},
}

func init() {
	if err := config.Init(viper.GetViper()); err != nil {
		presenter.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "fmt", "Log format (fmt or json)")
	flags.String("db-path", "", "Knowledge base database path")
	flags.String("skills-dir", "", "Directory SKILL.md entries are rendered to and discovered from")
	flags.String("ruleset", "", "Classification ruleset file")

	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
	viper.BindPFlag("db_path", flags.Lookup("db-path"))
	viper.BindPFlag("skills_dir", flags.Lookup("skills-dir"))
	viper.BindPFlag("ruleset", flags.Lookup("ruleset"))

	rootCmd.AddCommand(
		withTracing(ingestCmd),
		withTracing(classifyCmd),
		watchCmd,
		entryCmd,
		reportCmd,
		rulesetCmd,
		dbCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
