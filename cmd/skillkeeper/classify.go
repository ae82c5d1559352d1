package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/classifier"
	"github.com/makgunay/claude-swift-skills/pkg/document"
)

type classifyOptions struct {
	json    bool
	entries []string
}

var classifyOpts classifyOptions

var classifyCmd = &cobra.Command{
	Use:   "classify <path|glob>...",
	Short: "Show which entries documents would be routed to",
	Long:  `Classifies documents against the ruleset without extracting or writing anything.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		docs, err := document.Load(ctx, args...)
		if err != nil && len(docs) == 0 {
			return errors.Wrap(err, "failed to load documents")
		}
		rules, err := loadRuleset(ctx, cfg.Ruleset, classifyOpts.entries)
		if err != nil {
			return err
		}

		results := classifier.ClassifyAll(docs, rules)
		if classifyOpts.json {
			return printJSON(results)
		}

		for _, r := range results {
			if r.Unmapped {
				fmt.Printf("%s\t(unmapped) %s\n", r.Document, r.Explanation)
				continue
			}
			matches := make([]string, 0, len(r.Entries))
			for _, m := range r.Entries {
				matches = append(matches, fmt.Sprintf("%s (%.2f)", m.Entry, m.Score))
			}
			fmt.Printf("%s\t%s\n", r.Document, strings.Join(matches, ", "))
		}
		return nil
	},
}

func init() {
	flags := classifyCmd.Flags()
	flags.BoolVar(&classifyOpts.json, "json", false, "Print classifications as JSON")
	flags.StringSliceVar(&classifyOpts.entries, "entries", nil, "Only route to these entries (comma separated)")
}
