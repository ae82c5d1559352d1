package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/makgunay/claude-swift-skills/pkg/document"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/pipeline"
	"github.com/makgunay/claude-swift-skills/pkg/presenter"
	"github.com/makgunay/claude-swift-skills/pkg/report"
	"github.com/makgunay/claude-swift-skills/pkg/store"
	"github.com/makgunay/claude-swift-skills/pkg/telemetry"
)

type ingestOptions struct {
	dryRun  bool
	diff    bool
	json    bool
	entries []string
}

var ingestOpts ingestOptions

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|glob>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Classifies each document, extracts its records, merges them into the
matching entries and prints the change report of the run.

Paths may be files, directories (walked for .md, .markdown, .txt, .html and
.htm files) or doublestar globs such as "notes/**/*.md".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		docs, err := document.Load(ctx, args...)
		if err != nil {
			var merr *multierror.Error
			if !errors.As(err, &merr) || len(docs) == 0 {
				return errors.Wrap(err, "failed to load documents")
			}
			telemetry.RecordError(ctx, err)
			presenter.Warning(fmt.Sprintf("skipped %s", plural(len(merr.Errors), "unreadable document")))
		}
		if len(docs) == 0 {
			presenter.Warning("No documents matched")
			return nil
		}

		rules, err := loadRuleset(ctx, cfg.Ruleset, ingestOpts.entries)
		if err != nil {
			return err
		}

		var st store.Store
		if _, statErr := os.Stat(cfg.DBPath); !ingestOpts.dryRun || statErr == nil {
			sqliteStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer sqliteStore.Close()
			st = sqliteStore
		} else {
			logger.G(ctx).WithField("db_path", cfg.DBPath).Info("no knowledge base yet, every entry is new")
		}

		p := pipeline.New(st, rules,
			pipeline.WithWorkers(cfg.Pipeline.Workers),
			pipeline.WithDryRun(ingestOpts.dryRun),
			pipeline.WithCreateUnmapped(cfg.Pipeline.CreateUnmapped),
			pipeline.WithInto(cfg.Pipeline.Into),
			pipeline.WithSkillsDir(cfg.SkillsDir),
			pipeline.WithCeiling(cfg.KB.SectionCeiling),
			pipeline.WithRetryAttempts(cfg.Pipeline.RetryAttempts),
		)
		result, err := p.Run(ctx, docs)
		if err != nil {
			return err
		}

		if ingestOpts.json {
			return printJSON(result.Report)
		}

		if ingestOpts.diff {
			names := make([]string, 0, len(result.Diffs))
			for name := range result.Diffs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				presenter.Section(name)
				fmt.Println(result.Diffs[name])
			}
			if len(names) > 0 {
				presenter.Separator()
			}
		}

		fmt.Print(report.Render(result.Report))
		presenter.Stats(presenter.NewRunStats(result.Report))
		return nil
	},
}

func init() {
	flags := ingestCmd.Flags()
	flags.BoolVar(&ingestOpts.dryRun, "dry-run", false, "Run every stage without persisting anything")
	flags.BoolVar(&ingestOpts.diff, "diff", false, "Print a unified diff of every changed entry")
	flags.BoolVar(&ingestOpts.json, "json", false, "Print the change report as JSON")
	flags.Bool("create-unmapped", false, "Create a new entry for each document no rule claims")
	flags.String("into", "", "Fold unmapped documents into the named entry")
	flags.StringSliceVar(&ingestOpts.entries, "entries", nil, "Only route to these entries (comma separated)")

	viper.BindPFlag("pipeline.create_unmapped", flags.Lookup("create-unmapped"))
	viper.BindPFlag("pipeline.into", flags.Lookup("into"))
}
