// Package ruleset holds the versioned classification registry: an ordered
// list of (keywords, entry, weight) rules loaded from YAML. Classification
// runs take a Ruleset value instead of consulting global state, so a run is
// reproducible from the file alone.
package ruleset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultThreshold is the minimum score a document needs for an entry.
	DefaultThreshold = 0.2
	// DefaultMinMatches is the minimum number of shared keywords per rule.
	DefaultMinMatches = 1
	// DefaultCeiling is the per-section record ceiling of an entry.
	DefaultCeiling = 40
)

// Rule routes documents sharing keywords (or matching filename globs) to an entry.
type Rule struct {
	Entry       string   `yaml:"entry" json:"entry" jsonschema:"required,description=Target knowledge entry name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"description=Description used when the entry is first created"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty" jsonschema:"description=Topic signature compared against document tokens"`
	Files       []string `yaml:"files,omitempty" json:"files,omitempty" jsonschema:"description=Filename globs that route a document to the entry outright"`
	Weight      float64  `yaml:"weight,omitempty" json:"weight,omitempty" jsonschema:"minimum=0,maximum=1,description=Score multiplier (default 1)"`
	Ceiling     int      `yaml:"ceiling,omitempty" json:"ceiling,omitempty" jsonschema:"minimum=0,description=Per-section record ceiling override"`

	signature map[string]struct{}
	globs     []glob.Glob
}

// Signature returns the normalized keyword set of the rule.
func (r *Rule) Signature() map[string]struct{} {
	return r.signature
}

// MatchFile returns the file globs matching the document name.
func (r *Rule) MatchFile(name string) []string {
	base := strings.ToLower(filepath.Base(name))
	var hits []string
	for i, g := range r.globs {
		if g.Match(base) {
			hits = append(hits, r.Files[i])
		}
	}
	return hits
}

// Ruleset is the explicit classification registry.
type Ruleset struct {
	Version        int     `yaml:"version" json:"version" jsonschema:"required,minimum=1"`
	Threshold      float64 `yaml:"threshold,omitempty" json:"threshold,omitempty" jsonschema:"minimum=0,maximum=1"`
	MinMatches     int     `yaml:"min_matches,omitempty" json:"min_matches,omitempty" jsonschema:"minimum=1"`
	DefaultCeiling int     `yaml:"default_ceiling,omitempty" json:"default_ceiling,omitempty" jsonschema:"minimum=0,description=Section ceiling for entries without a rule override; 0 defers to the configured kb.section_ceiling"`
	Rules          []*Rule `yaml:"rules" json:"rules"`
}

// Load reads and validates a ruleset file.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ruleset %s", path)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ruleset %s", path)
	}
	return rs, nil
}

// Parse decodes a YAML ruleset, applies defaults and compiles it.
func Parse(data []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, errors.Wrap(err, "failed to parse ruleset yaml")
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Empty returns a version 1 ruleset with no rules.
func Empty() *Ruleset {
	rs := &Ruleset{Version: 1}
	_ = rs.compile()
	return rs
}

func (rs *Ruleset) compile() error {
	if rs.Version < 1 {
		return errors.New("ruleset version must be >= 1")
	}
	if rs.Threshold == 0 {
		rs.Threshold = DefaultThreshold
	}
	if rs.Threshold < 0 || rs.Threshold > 1 {
		return errors.Errorf("threshold %v out of range (0, 1]", rs.Threshold)
	}
	if rs.MinMatches <= 0 {
		rs.MinMatches = DefaultMinMatches
	}
	if rs.DefaultCeiling < 0 {
		return errors.Errorf("default_ceiling %d must not be negative", rs.DefaultCeiling)
	}

	for i, r := range rs.Rules {
		if err := r.compile(); err != nil {
			return errors.Wrapf(err, "rule %d", i)
		}
	}
	return nil
}

func (r *Rule) compile() error {
	r.Entry = strings.TrimSpace(r.Entry)
	if r.Entry == "" {
		return errors.New("entry is required")
	}
	if len(r.Keywords) == 0 && len(r.Files) == 0 {
		return errors.Errorf("rule for %q needs keywords or file globs", r.Entry)
	}
	if r.Weight == 0 {
		r.Weight = 1
	}
	if r.Weight < 0 || r.Weight > 1 {
		return errors.Errorf("rule for %q has weight %v out of range (0, 1]", r.Entry, r.Weight)
	}

	r.signature = make(map[string]struct{}, len(r.Keywords))
	for _, kw := range r.Keywords {
		kw = NormalizeKeyword(kw)
		if kw != "" {
			r.signature[kw] = struct{}{}
		}
	}

	r.globs = nil
	for _, pattern := range r.Files {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return errors.Wrapf(err, "rule for %q has invalid file glob %q", r.Entry, pattern)
		}
		r.globs = append(r.globs, g)
	}
	return nil
}

// NormalizeKeyword lowercases a keyword and collapses inner whitespace.
func NormalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}

// Entries returns the distinct entry names in rule order.
func (rs *Ruleset) Entries() []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range rs.Rules {
		if !seen[r.Entry] {
			seen[r.Entry] = true
			names = append(names, r.Entry)
		}
	}
	return names
}

// HasEntry reports whether any rule targets the entry.
func (rs *Ruleset) HasEntry(name string) bool {
	for _, r := range rs.Rules {
		if r.Entry == name {
			return true
		}
	}
	return false
}

// CeilingFor returns the section ceiling for an entry. A rule override wins,
// then an explicit default_ceiling, then fallback (the configured ceiling).
// DefaultCeiling applies when none of them is set.
func (rs *Ruleset) CeilingFor(entry string, fallback int) int {
	switch {
	case rs.CeilingOverride(entry) > 0:
		return rs.CeilingOverride(entry)
	case rs.DefaultCeiling > 0:
		return rs.DefaultCeiling
	case fallback > 0:
		return fallback
	}
	return DefaultCeiling
}

// CeilingOverride returns the first rule ceiling set for an entry, or 0.
func (rs *Ruleset) CeilingOverride(entry string) int {
	for _, r := range rs.Rules {
		if r.Entry == entry && r.Ceiling > 0 {
			return r.Ceiling
		}
	}
	return 0
}

// KeywordsFor returns the distinct keywords of every rule targeting an
// entry, in rule order.
func (rs *Ruleset) KeywordsFor(entry string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.Rules {
		if r.Entry != entry {
			continue
		}
		for _, kw := range r.Keywords {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// DescriptionFor returns the first rule description for an entry.
func (rs *Ruleset) DescriptionFor(entry string) string {
	for _, r := range rs.Rules {
		if r.Entry == entry && r.Description != "" {
			return r.Description
		}
	}
	return ""
}

// Signature describes an existing knowledge entry discovered on disk.
type Signature struct {
	Entry       string
	Description string
	Keywords    []string
	Ceiling     int
}

// Merge returns a copy of the ruleset with rules appended for discovered
// entries that carry keywords. Explicit rules keep precedence because
// they come first.
func (rs *Ruleset) Merge(signatures []Signature) (*Ruleset, error) {
	merged := &Ruleset{
		Version:        rs.Version,
		Threshold:      rs.Threshold,
		MinMatches:     rs.MinMatches,
		DefaultCeiling: rs.DefaultCeiling,
	}
	for _, r := range rs.Rules {
		c := *r
		merged.Rules = append(merged.Rules, &c)
	}
	for _, sig := range signatures {
		if len(sig.Keywords) == 0 {
			continue
		}
		merged.Rules = append(merged.Rules, &Rule{
			Entry:       sig.Entry,
			Description: sig.Description,
			Keywords:    sig.Keywords,
			Ceiling:     sig.Ceiling,
			Weight:      1,
		})
	}
	if err := merged.compile(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Restrict returns a copy of the ruleset keeping only the rules of the
// named entries. An empty list keeps every rule.
func (rs *Ruleset) Restrict(entries []string) (*Ruleset, error) {
	if len(entries) == 0 {
		return rs, nil
	}
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e] = true
	}

	restricted := &Ruleset{
		Version:        rs.Version,
		Threshold:      rs.Threshold,
		MinMatches:     rs.MinMatches,
		DefaultCeiling: rs.DefaultCeiling,
	}
	for _, r := range rs.Rules {
		if keep[r.Entry] {
			c := *r
			restricted.Rules = append(restricted.Rules, &c)
		}
	}
	if err := restricted.compile(); err != nil {
		return nil, err
	}
	return restricted, nil
}

// Schema returns the JSON schema of the ruleset file format.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := r.Reflect(&Ruleset{})
	schema.Title = "skillkeeper classification ruleset"
	return json.MarshalIndent(schema, "", "  ")
}
