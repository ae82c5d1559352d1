package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/store/sqlite"
)

func openStore(ctx context.Context) (*sqlite.Store, error) {
	st, err := sqlite.NewStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open knowledge base at %s", cfg.DBPath)
	}
	return st, nil
}

// loadRuleset reads the configured ruleset file and appends signatures of
// the entries already rendered under the skills directory. A non-empty
// allowed list restricts routing to the named entries.
func loadRuleset(ctx context.Context, path string, allowed []string) (*ruleset.Ruleset, error) {
	rules := ruleset.Empty()
	if path != "" {
		loaded, err := ruleset.Load(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	rules, err := rules.Restrict(allowed)
	if err != nil {
		return nil, err
	}

	if cfg.SkillsDir != "" {
		discovery, err := skills.NewDiscovery(skills.WithSkillDirs(cfg.SkillsDir))
		if err != nil {
			return nil, err
		}
		signatures, err := discovery.Signatures(allowed...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to discover existing entries")
		}
		logger.G(ctx).WithField("entries", len(signatures)).Debug("merged discovered entry signatures")
		if rules, err = rules.Merge(signatures); err != nil {
			return nil, err
		}
	}

	known := make(map[string]bool)
	for _, name := range rules.Entries() {
		known[name] = true
	}
	for _, name := range allowed {
		if !known[name] {
			logger.G(ctx).WithField(logger.FieldEntry, name).Warn("allowed entry has no rule or discovered signature")
		}
	}
	return rules, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	if strings.HasSuffix(word, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(word, "y"))
	}
	return fmt.Sprintf("%d %ss", n, word)
}
