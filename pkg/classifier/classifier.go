// Package classifier routes incoming documents to knowledge entries by
// comparing the document keyword set against each rule signature of a
// ruleset. Classification is a pure function of (ruleset, document).
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Overlap is the Szymkiewicz–Simpson overlap coefficient of two sets,
// |a ∩ b| / min(|a|, |b|), along with the shared members sorted.
func Overlap(a, b map[string]struct{}) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var shared []string
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared = append(shared, tok)
		}
	}
	sort.Strings(shared)
	return float64(len(shared)) / float64(len(small)), shared
}

// Classify scores a document against every rule and returns all entries
// at or above the ruleset threshold. A document with no extractable
// keywords and no filename hit is reported unmapped rather than failing.
func Classify(doc kb.IncomingDocument, rs *ruleset.Ruleset) kb.ClassificationResult {
	result := kb.ClassificationResult{Document: doc.Name}

	tokens := Tokenize(doc.Content)
	docSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		docSet[tok] = struct{}{}
	}

	best := make(map[string]*kb.EntryMatch)
	for _, rule := range rs.Rules {
		score, shared := Overlap(docSet, rule.Signature())
		if len(shared) < rs.MinMatches {
			score, shared = 0, nil
		}
		score *= rule.Weight

		globs := rule.MatchFile(doc.Name)
		if len(globs) > 0 && rule.Weight > score {
			score = rule.Weight
		}
		if score == 0 {
			continue
		}

		current, ok := best[rule.Entry]
		if !ok || score > current.Score {
			best[rule.Entry] = &kb.EntryMatch{
				Entry:   rule.Entry,
				Score:   score,
				Matched: shared,
				Globs:   globs,
			}
		}
	}

	var below []string
	for _, m := range best {
		if m.Score >= rs.Threshold {
			result.Entries = append(result.Entries, *m)
		} else {
			below = append(below, fmt.Sprintf("%s=%.2f", m.Entry, m.Score))
		}
	}
	sort.Slice(result.Entries, func(i, j int) bool {
		if result.Entries[i].Score != result.Entries[j].Score {
			return result.Entries[i].Score > result.Entries[j].Score
		}
		return result.Entries[i].Entry < result.Entries[j].Entry
	})
	sort.Strings(below)

	switch {
	case len(result.Entries) > 0:
		parts := make([]string, 0, len(result.Entries))
		for _, m := range result.Entries {
			parts = append(parts, describeMatch(m))
		}
		result.Explanation = strings.Join(parts, "; ")
	case len(tokens) == 0 && len(best) == 0:
		result.Unmapped = true
		result.Explanation = "no extractable keywords"
	case len(below) > 0:
		result.Unmapped = true
		result.Explanation = fmt.Sprintf("no entry reached threshold %.2f (best: %s)", rs.Threshold, strings.Join(below, ", "))
	default:
		result.Unmapped = true
		result.Explanation = "no entry signature overlaps the document keywords"
	}

	return result
}

func describeMatch(m kb.EntryMatch) string {
	var why []string
	if len(m.Matched) > 0 {
		why = append(why, "keywords "+strings.Join(m.Matched, ", "))
	}
	if len(m.Globs) > 0 {
		why = append(why, "file "+strings.Join(m.Globs, ", "))
	}
	return fmt.Sprintf("%s=%.2f (%s)", m.Entry, m.Score, strings.Join(why, "; "))
}

// ClassifyAll classifies a batch, preserving input order.
func ClassifyAll(docs []kb.IncomingDocument, rs *ruleset.Ruleset) []kb.ClassificationResult {
	results := make([]kb.ClassificationResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, Classify(doc, rs))
	}
	return results
}
