package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/presenter"
	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
)

var rulesetCmd = &cobra.Command{
	Use:   "ruleset",
	Short: "Work with classification rulesets",
}

var rulesetValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a ruleset file",
	Long:  `Validates the given ruleset file, or the configured one when no path is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := cfg.Ruleset
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no ruleset given and none configured")
		}

		rules, err := ruleset.Load(path)
		if err != nil {
			return err
		}
		entries := rules.Entries()
		presenter.Success(fmt.Sprintf("%s is valid: version %d, %s for %s", path, rules.Version,
			plural(len(rules.Rules), "rule"), plural(len(entries), "entry")))
		for _, name := range entries {
			presenter.Info("  " + name)
		}
		return nil
	},
}

var rulesetSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the ruleset format",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		schema, err := ruleset.Schema()
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	},
}

func init() {
	rulesetCmd.AddCommand(rulesetValidateCmd, rulesetSchemaCmd)
}
