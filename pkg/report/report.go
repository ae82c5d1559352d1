// Package report renders a run's ChangeReport as Markdown. Output depends
// only on the report: entries are sorted by name and the changes of an
// entry keep the order they were logged in.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// detailKinds is the order change counts appear in the Details column.
var detailKinds = []kb.ChangeKind{
	kb.ChangeAdded,
	kb.ChangeDuplicate,
	kb.ChangeSuperseded,
	kb.ChangeDeprecated,
	kb.ChangeConflicted,
	kb.ChangeRejected,
	kb.ChangeDemoted,
	kb.ChangeNeedsReview,
	kb.ChangeFailed,
}

type listSection struct {
	title string
	kinds []kb.ChangeKind
}

var listSections = []listSection{
	{"Deprecations Flagged", []kb.ChangeKind{kb.ChangeSuperseded, kb.ChangeDeprecated}},
	{"Conflicts", []kb.ChangeKind{kb.ChangeConflicted}},
	{"Rejected", []kb.ChangeKind{kb.ChangeRejected}},
	{"Needs Review", []kb.ChangeKind{kb.ChangeNeedsReview}},
}

// Render formats the report.
func Render(r *kb.ChangeReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Change Report %s\n\n", r.RunID)
	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(&b, "Started %s, %d document(s), %s.\n\n",
		r.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"), r.Documents, mode)

	entries := sortedEntries(r)
	changes := sortedChanges(r.Changes)

	b.WriteString("| Entry | Action | Details |\n")
	b.WriteString("|-------|--------|---------|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(e.Entry), e.Action, escapeCell(details(changes, e.Entry)))
	}
	if len(entries) == 0 {
		b.WriteString("| _none_ | NONE | - |\n")
	}

	for _, s := range listSections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.title)
		writeList(&b, filter(changes, s.kinds...))
	}

	b.WriteString("\n## Unresolved\n\n")
	unresolved := append([]kb.UnresolvedDocument(nil), r.Unresolved...)
	sort.SliceStable(unresolved, func(i, j int) bool { return unresolved[i].Document < unresolved[j].Document })
	if len(unresolved) == 0 {
		b.WriteString("_None._\n")
	}
	for _, u := range unresolved {
		fmt.Fprintf(&b, "- `%s`: %s\n", u.Document, u.Reason)
	}

	if failed := filter(changes, kb.ChangeFailed); len(failed) > 0 {
		b.WriteString("\n## Failed\n\n")
		writeList(&b, failed)
	}

	return b.String()
}

func sortedEntries(r *kb.ChangeReport) []kb.EntryChange {
	entries := append([]kb.EntryChange(nil), r.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Entry < entries[j].Entry })
	return entries
}

func sortedChanges(changes []kb.Change) []kb.Change {
	out := append([]kb.Change(nil), changes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out
}

func filter(changes []kb.Change, kinds ...kb.ChangeKind) []kb.Change {
	var out []kb.Change
	for _, c := range changes {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func details(changes []kb.Change, entry string) string {
	counts := make(map[kb.ChangeKind]int)
	for _, c := range changes {
		if c.Entry == entry {
			counts[c.Kind]++
		}
	}
	var parts []string
	for _, k := range detailKinds {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ReplaceAll(string(k), "_", " ")))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func writeList(b *strings.Builder, changes []kb.Change) {
	if len(changes) == 0 {
		b.WriteString("_None._\n")
		return
	}
	for _, c := range changes {
		line := fmt.Sprintf("- **%s**: %s", c.Entry, c.Detail)
		if c.Document != "" {
			line += fmt.Sprintf(" (from `%s`)", c.Document)
		}
		b.WriteString(line + "\n")
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
