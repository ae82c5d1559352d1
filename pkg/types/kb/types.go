// Package kb defines the knowledge base domain model shared by the
// classifier, extractor, merger, writer and reporter. A knowledge entry is
// a named skill document holding section-ordered records, each carrying a
// minimum-version annotation and the source documents it came from.
package kb

import (
	"sort"
	"time"
)

// UnspecifiedVersion is the version tag given to records whose source
// text carries no minimum-version annotation.
const UnspecifiedVersion = "unspecified"

// Section identifies one of the four fixed sections of an entry.
type Section string

const (
	SectionConstraints   Section = "constraints"
	SectionDecisionRules Section = "decision_rules"
	SectionPatterns      Section = "patterns"
	SectionReferences    Section = "references"
)

// SectionOrder is the order sections are stored and rendered in.
var SectionOrder = []Section{
	SectionConstraints,
	SectionDecisionRules,
	SectionPatterns,
	SectionReferences,
}

// Title returns the human readable heading for the section.
func (s Section) Title() string {
	switch s {
	case SectionConstraints:
		return "Constraints"
	case SectionDecisionRules:
		return "Decision Rules"
	case SectionPatterns:
		return "Patterns"
	case SectionReferences:
		return "References"
	default:
		return string(s)
	}
}

// Singular returns the record noun used in reports.
func (s Section) Singular() string {
	switch s {
	case SectionConstraints:
		return "constraint"
	case SectionDecisionRules:
		return "decision rule"
	case SectionPatterns:
		return "pattern"
	case SectionReferences:
		return "reference"
	default:
		return string(s)
	}
}

// Source is a citation pointing at the document a record was extracted from.
type Source struct {
	Document string    `json:"document" yaml:"document"`
	Time     time.Time `json:"time" yaml:"time"`
}

// Sources is a set of citations keyed by document name.
type Sources []Source

// Union returns the receiver extended with any citation from other whose
// document is not yet cited. The result is sorted by time then document.
func (s Sources) Union(other Sources) Sources {
	seen := make(map[string]int, len(s))
	out := make(Sources, 0, len(s)+len(other))
	for _, src := range s {
		if _, ok := seen[src.Document]; ok {
			continue
		}
		seen[src.Document] = len(out)
		out = append(out, src)
	}
	for _, src := range other {
		if i, ok := seen[src.Document]; ok {
			if src.Time.After(out[i].Time) {
				out[i].Time = src.Time
			}
			continue
		}
		seen[src.Document] = len(out)
		out = append(out, src)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Document < out[j].Document
	})
	return out
}

// Latest returns the time of the newest citation.
func (s Sources) Latest() time.Time {
	var latest time.Time
	for _, src := range s {
		if src.Time.After(latest) {
			latest = src.Time
		}
	}
	return latest
}

// Documents returns the cited document names in citation order.
func (s Sources) Documents() []string {
	names := make([]string, 0, len(s))
	for _, src := range s {
		names = append(names, src.Document)
	}
	return names
}

// Directive is the polarity of a constraint.
type Directive string

const (
	DirectiveUse   Directive = "use"
	DirectiveAvoid Directive = "avoid"
)

// Pattern is a tagged usage example.
type Pattern struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Language     string    `json:"language,omitempty"`
	Code         string    `json:"code"`
	MinVersion   string    `json:"min_version"`
	Sources      Sources   `json:"sources"`
	Status       Status    `json:"status"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Constraint is a prohibition or recommendation about one subject.
type Constraint struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Directive    Directive `json:"directive"`
	Replacement  string    `json:"replacement,omitempty"`
	Text         string    `json:"text"`
	MinVersion   string    `json:"min_version"`
	Sources      Sources   `json:"sources"`
	Status       Status    `json:"status"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DecisionRule is a conditional branch choosing an approach.
type DecisionRule struct {
	ID         string    `json:"id"`
	Condition  string    `json:"condition"`
	Outcome    string    `json:"outcome"`
	Text       string    `json:"text"`
	MinVersion string    `json:"min_version,omitempty"`
	Sources    Sources   `json:"sources"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reference is an external link cited by a source document.
type Reference struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url"`
	Sources   Sources   `json:"sources"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is a knowledge base entry. Only visible records are held here;
// records demoted past the section ceiling live in the overflow store.
type Entry struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Keywords      []string       `json:"keywords,omitempty"`
	Ceiling       int            `json:"ceiling,omitempty"`
	Constraints   []Constraint   `json:"constraints"`
	DecisionRules []DecisionRule `json:"decision_rules"`
	Patterns      []Pattern      `json:"patterns"`
	References    []Reference    `json:"references"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewEntry returns an empty entry.
func NewEntry(name, description string) *Entry {
	return &Entry{
		Name:        name,
		Description: description,
	}
}

// Clone returns a deep copy of the entry so a merge can work on it without
// touching the stored original.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Keywords = append([]string(nil), e.Keywords...)
	c.Constraints = make([]Constraint, len(e.Constraints))
	for i, r := range e.Constraints {
		r.Sources = append(Sources(nil), r.Sources...)
		c.Constraints[i] = r
	}
	c.DecisionRules = make([]DecisionRule, len(e.DecisionRules))
	for i, r := range e.DecisionRules {
		r.Sources = append(Sources(nil), r.Sources...)
		c.DecisionRules[i] = r
	}
	c.Patterns = make([]Pattern, len(e.Patterns))
	for i, r := range e.Patterns {
		r.Sources = append(Sources(nil), r.Sources...)
		c.Patterns[i] = r
	}
	c.References = make([]Reference, len(e.References))
	for i, r := range e.References {
		r.Sources = append(Sources(nil), r.Sources...)
		c.References[i] = r
	}
	return &c
}

// Count returns the number of visible records in a section.
func (e *Entry) Count(section Section) int {
	switch section {
	case SectionConstraints:
		return len(e.Constraints)
	case SectionDecisionRules:
		return len(e.DecisionRules)
	case SectionPatterns:
		return len(e.Patterns)
	case SectionReferences:
		return len(e.References)
	}
	return 0
}

// EntrySummary is the listing view of an entry.
type EntrySummary struct {
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	RecordCount   int       `json:"record_count" db:"record_count"`
	OverflowCount int       `json:"overflow_count" db:"overflow_count"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// OverflowRecord is a record demoted out of an entry's visible sections.
type OverflowRecord struct {
	Entry     string    `json:"entry"`
	Section   Section   `json:"section"`
	RecordID  string    `json:"record_id"`
	Summary   string    `json:"summary"`
	Payload   []byte    `json:"payload"`
	DemotedAt time.Time `json:"demoted_at"`
}

// Format is the markup of an incoming document.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// IncomingDocument is raw source text handed to a pipeline run.
type IncomingDocument struct {
	Name    string
	Path    string
	Content string
	Time    time.Time
	Format  Format
}

// Source returns the citation for records extracted from the document.
func (d IncomingDocument) Source() Source {
	return Source{Document: d.Name, Time: d.Time}
}

// EntryMatch is one entry a document classified into.
type EntryMatch struct {
	Entry   string   `json:"entry"`
	Score   float64  `json:"score"`
	Matched []string `json:"matched,omitempty"`
	Globs   []string `json:"globs,omitempty"`
}

// ClassificationResult maps a document to the entries it belongs to.
type ClassificationResult struct {
	Document    string       `json:"document"`
	Entries     []EntryMatch `json:"entries,omitempty"`
	Unmapped    bool         `json:"unmapped"`
	Explanation string       `json:"explanation"`
}

// EntryNames returns the names of the matched entries.
func (r ClassificationResult) EntryNames() []string {
	names := make([]string, 0, len(r.Entries))
	for _, m := range r.Entries {
		names = append(names, m.Entry)
	}
	return names
}
