package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
)

// Discovery finds rendered entries in configured directories.
type Discovery struct {
	skillDirs []string
}

// Option configures a Discovery.
type Option func(*Discovery) error

// WithSkillDirs sets the directories to scan, highest precedence first.
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) error {
		d.skillDirs = dirs
		return nil
	}
}

// WithDefaultDirs scans the repo-local and user-global skill directories.
func WithDefaultDirs() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		d.skillDirs = []string{
			"./skills",
			filepath.Join(homeDir, ".skillkeeper", "skills"),
		}
		return nil
	}
}

// NewDiscovery creates a discovery instance. Without options the default
// directories are used.
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{}

	if len(opts) == 0 {
		opts = []Option{WithDefaultDirs()}
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// DiscoverSkills loads every valid entry. On name collisions the entry
// from the earlier directory wins.
func (d *Discovery) DiscoverSkills() (map[string]*Skill, error) {
	skills := make(map[string]*Skill)
	for _, dir := range d.skillDirs {
		d.discoverSkillsFromDir(dir, skills)
	}
	return skills, nil
}

func (d *Discovery) discoverSkillsFromDir(dir string, skills map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())

		// os.Stat follows symlinks so linked entry directories count
		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}

		skill, err := LoadFile(filepath.Join(entryPath, FileName))
		if err != nil {
			continue
		}

		if _, exists := skills[skill.Name]; !exists {
			skill.Directory = entryPath
			skills[skill.Name] = skill
		}
	}
}

// Signatures returns the classification signatures of the discovered
// entries named in allowed, or of all of them when allowed is empty.
// They are sorted by name so merged rulesets are deterministic.
func (d *Discovery) Signatures(allowed ...string) ([]ruleset.Signature, error) {
	skills, err := d.DiscoverSkills()
	if err != nil {
		return nil, err
	}
	skills = FilterByAllowlist(skills, allowed)

	sigs := make([]ruleset.Signature, 0, len(skills))
	for _, s := range skills {
		sigs = append(sigs, s.Signature())
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Entry < sigs[j].Entry })
	return sigs, nil
}

// LoadFile parses a single SKILL.md file.
func LoadFile(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}
	return Parse(content)
}

// Parse decodes SKILL.md content: frontmatter through goldmark-meta, body
// with the frontmatter stripped.
func Parse(content []byte) (*Skill, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	raw := meta.Get(pctx)
	if raw == nil {
		return nil, errors.New("missing frontmatter")
	}

	var fm Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fm,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode frontmatter")
	}

	if fm.Name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if fm.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	return &Skill{
		Name:        fm.Name,
		Description: fm.Description,
		Keywords:    fm.Keywords,
		Ceiling:     fm.Ceiling,
		Content:     StripFrontmatter(string(content)),
	}, nil
}

// StripFrontmatter removes a leading YAML frontmatter block.
func StripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
}

// FilterByAllowlist keeps only the named skills. An empty allowlist keeps all.
func FilterByAllowlist(skills map[string]*Skill, allowed []string) map[string]*Skill {
	if len(allowed) == 0 {
		return skills
	}

	filtered := make(map[string]*Skill)
	for _, name := range allowed {
		if skill, exists := skills[name]; exists {
			filtered[name] = skill
		}
	}
	return filtered
}
