// Package skills discovers knowledge entries rendered on disk. Each entry
// is a directory holding a SKILL.md file whose YAML frontmatter names the
// entry, describes it, and lists the keyword signature the classifier
// routes documents with.
package skills

import "github.com/makgunay/claude-swift-skills/pkg/ruleset"

// FileName is the name of the rendered entry document inside its directory.
const FileName = "SKILL.md"

// Skill is a discovered on-disk entry.
type Skill struct {
	Name        string   // Unique name from frontmatter
	Description string   // Brief description of the covered topic
	Keywords    []string // Topic signature used for classification
	Ceiling     int      // Optional per-section record ceiling
	Directory   string   // Full path to the entry directory
	Content     string   // SKILL.md body without frontmatter
}

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Description string   `mapstructure:"description" yaml:"description"`
	Keywords    []string `mapstructure:"keywords" yaml:"keywords,omitempty"`
	Ceiling     int      `mapstructure:"ceiling" yaml:"ceiling,omitempty"`
}

// Signature converts the skill into a ruleset signature.
func (s *Skill) Signature() ruleset.Signature {
	return ruleset.Signature{
		Entry:       s.Name,
		Description: s.Description,
		Keywords:    s.Keywords,
		Ceiling:     s.Ceiling,
	}
}
