package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/document"
	"github.com/makgunay/claude-swift-skills/pkg/inbox"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/pipeline"
	"github.com/makgunay/claude-swift-skills/pkg/presenter"
	"github.com/makgunay/claude-swift-skills/pkg/report"
	"github.com/makgunay/claude-swift-skills/pkg/store"
)

type watchOptions struct {
	ignore   []string
	debounce int
	quiet    bool
}

var watchOpts watchOptions

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Ingest documents as they land in inbox directories",
	Long: `Watches the given directories recursively and ingests new or changed
documents in batches once writes settle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchOpts.debounce < 0 {
			return errors.Errorf("debounce time cannot be negative: %d", watchOpts.debounce)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		presenter.SetQuiet(watchOpts.quiet)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				presenter.Warning("Cancellation requested, shutting down...")
				cancel()
			case <-ctx.Done():
			}
		}()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		w := inbox.New(args,
			inbox.WithIgnore(watchOpts.ignore...),
			inbox.WithDebounce(time.Duration(watchOpts.debounce)*time.Millisecond),
		)
		presenter.Info("Watching for new documents... Press Ctrl+C to stop")

		return w.Run(ctx, func(ctx context.Context, paths []string) error {
			return ingestBatch(ctx, st, paths)
		})
	},
}

// ingestBatch ingests one settled batch of changed paths. Unreadable files
// are logged and skipped so the rest of the batch still lands.
func ingestBatch(ctx context.Context, st store.Store, paths []string) error {
	docs, loadErr := document.Load(ctx, paths...)
	if len(docs) == 0 {
		return loadErr
	}
	if loadErr != nil {
		logger.G(ctx).WithError(loadErr).WithField("paths", len(paths)).Warn("skipped unreadable documents")
	}

	// reload so entries created by earlier batches are routed to
	rules, err := loadRuleset(ctx, cfg.Ruleset, nil)
	if err != nil {
		return err
	}
	p := pipeline.New(st, rules,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
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

	if !presenter.IsQuiet() {
		fmt.Print(report.Render(result.Report))
	}
	presenter.Stats(presenter.NewRunStats(result.Report))
	return nil
}

func init() {
	flags := watchCmd.Flags()
	flags.StringSliceVarP(&watchOpts.ignore, "ignore", "i", []string{".git", "node_modules"}, "Directory names to ignore")
	flags.IntVarP(&watchOpts.debounce, "debounce", "d", 500, "Debounce time in milliseconds before a batch is ingested")
	flags.BoolVarP(&watchOpts.quiet, "quiet", "q", false, "Suppress change reports and informational output")
}
