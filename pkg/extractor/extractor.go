// Package extractor pulls structured records out of a free-form document:
// fenced code blocks become patterns, directive phrasing becomes
// constraints, branching phrasing becomes decision rules and links become
// references. Extraction has no side effects.
package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/makgunay/claude-swift-skills/pkg/document"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

var (
	versionRe   = regexp.MustCompile(`\b(iOS|iPadOS|macOS|watchOS|tvOS|visionOS|Swift|Xcode)\s*(\d+(?:\.\d+)*)`)
	availableRe = regexp.MustCompile(`@available\(\s*([A-Za-z]+)\s+(\d+(?:\.\d+)*)`)
	setupRe     = regexp.MustCompile(`^(?:@testable\s+)?import\s|^#(?:import|include)\b|^package\s|^from\s+\S+\s+import\s|^using\s|^require\b`)
)

// languages whose snippets are not expected to open with an import
var noSetupLanguages = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "shell": true, "console": true, "text": true,
	"json": true, "yaml": true, "yml": true, "xml": true, "plist": true, "toml": true,
}

// Result holds the records extracted from one document for one entry.
type Result struct {
	Document      string
	Entry         string
	Constraints   []kb.Constraint
	DecisionRules []kb.DecisionRule
	Patterns      []kb.Pattern
	References    []kb.Reference

	// Notes carries needs_review flags raised during extraction.
	Notes []kb.Change
}

// Count returns the number of extracted records.
func (r *Result) Count() int {
	return len(r.Constraints) + len(r.DecisionRules) + len(r.Patterns) + len(r.References)
}

// Empty reports whether nothing was extracted.
func (r *Result) Empty() bool {
	return r.Count() == 0
}

type walker struct {
	doc        kb.IncomingDocument
	source     []byte
	docVersion string
	heading    string
	lastProse  string
	seenURLs   map[string]bool
	result     *Result
}

// Extract parses the document and returns every record it carries for the
// entry. Records are proposed, cite the document, and are dated with the
// document time. Records without a version annotation are tagged
// "unspecified" and flagged for review rather than dropped.
func Extract(ctx context.Context, doc kb.IncomingDocument, entry string) *Result {
	source := []byte(doc.Content)
	md := goldmark.New(goldmark.WithExtensions(meta.Meta, extension.Linkify))
	pctx := parser.NewContext()
	root := md.Parser().Parse(text.NewReader(source), parser.WithContext(pctx))

	w := &walker{
		doc:        doc,
		source:     source,
		docVersion: document.MinVersion(doc),
		seenURLs:   make(map[string]bool),
		result:     &Result{Document: doc.Name, Entry: entry},
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			w.heading = strings.ReplaceAll(plainText(node, source), "`", "")
			w.lastProse = ""
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			w.pattern(node)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			prose := plainText(node, source)
			w.prose(prose)
			w.lastProse = prose
		case *ast.Link:
			w.reference(string(node.Destination), plainText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			url := string(node.URL(source))
			w.reference(url, string(node.Label(source)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	logger.G(ctx).WithField(logger.FieldDocument, doc.Name).
		WithField(logger.FieldEntry, entry).
		WithField("records", w.result.Count()).
		Debug("extracted records")

	return w.result
}

func (w *walker) pattern(node *ast.FencedCodeBlock) {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(w.source))
	}
	code := strings.TrimRight(b.String(), "\n ")
	if strings.TrimSpace(code) == "" {
		return
	}
	language := strings.ToLower(string(node.Language(w.source)))

	version := availableVersion(code)
	if version == "" {
		version = w.versionOf(w.lastProse)
	}

	p := kb.Pattern{
		ID:         uuid.NewString(),
		Title:      w.heading,
		Language:   language,
		Code:       code,
		MinVersion: version,
		Sources:    kb.Sources{w.doc.Source()},
		Status:     kb.StatusProposed,
		CreatedAt:  w.doc.Time,
	}
	w.result.Patterns = append(w.result.Patterns, p)

	if version == kb.UnspecifiedVersion {
		w.note(kb.SectionPatterns, p.ID, fmt.Sprintf("pattern %q has no minimum-version annotation", p.Summary()))
	}
	if !noSetupLanguages[language] && !hasSetupLine(code) {
		w.note(kb.SectionPatterns, p.ID, fmt.Sprintf("pattern %q has no leading import or setup line", p.Summary()))
	}
}

func (w *walker) prose(prose string) {
	for _, sentence := range splitSentences(prose) {
		if condition, outcome, ok := decisionFromSentence(sentence); ok {
			version := w.versionOf(sentence)
			if version == kb.UnspecifiedVersion {
				version = ""
			}
			w.result.DecisionRules = append(w.result.DecisionRules, kb.DecisionRule{
				ID:         uuid.NewString(),
				Condition:  condition,
				Outcome:    outcome,
				Text:       sentence,
				MinVersion: version,
				Sources:    kb.Sources{w.doc.Source()},
				Status:     kb.StatusProposed,
				CreatedAt:  w.doc.Time,
			})
			continue
		}

		subject, directive, replacement, ok := constraintFromSentence(sentence)
		if !ok {
			continue
		}
		c := kb.Constraint{
			ID:          uuid.NewString(),
			Subject:     subject,
			Directive:   directive,
			Replacement: replacement,
			Text:        sentence,
			MinVersion:  w.versionOf(sentence),
			Sources:     kb.Sources{w.doc.Source()},
			Status:      kb.StatusProposed,
			CreatedAt:   w.doc.Time,
		}
		w.result.Constraints = append(w.result.Constraints, c)
		if c.MinVersion == kb.UnspecifiedVersion {
			w.note(kb.SectionConstraints, c.ID, fmt.Sprintf("constraint %q has no minimum-version annotation", c.Summary()))
		}
	}
}

func (w *walker) reference(url, title string) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return
	}
	if w.seenURLs[url] {
		return
	}
	w.seenURLs[url] = true

	title = strings.TrimSpace(strings.ReplaceAll(title, "`", ""))
	if title == url {
		title = ""
	}
	w.result.References = append(w.result.References, kb.Reference{
		ID:        uuid.NewString(),
		Title:     title,
		URL:       url,
		Sources:   kb.Sources{w.doc.Source()},
		Status:    kb.StatusProposed,
		CreatedAt: w.doc.Time,
	})
}

// versionOf resolves the minimum version of a record from its own text,
// then the nearest heading, then the document frontmatter.
func (w *walker) versionOf(recordText string) string {
	for _, candidate := range []string{recordText, w.heading} {
		if v := availableVersion(candidate); v != "" {
			return v
		}
		if v := mentionedVersion(candidate); v != "" {
			return v
		}
	}
	if w.docVersion != "" {
		return w.docVersion
	}
	return kb.UnspecifiedVersion
}

func (w *walker) note(section kb.Section, id, detail string) {
	w.result.Notes = append(w.result.Notes, kb.Change{
		Entry:    w.result.Entry,
		Kind:     kb.ChangeNeedsReview,
		Section:  section,
		RecordID: id,
		Document: w.doc.Name,
		Detail:   detail,
	})
}

func availableVersion(s string) string {
	if m := availableRe.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[2]
	}
	return ""
}

func mentionedVersion(s string) string {
	if m := versionRe.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[2]
	}
	return ""
}

// hasSetupLine reports whether the first code line imports or sets up
// what the snippet depends on. Leading comments are skipped.
func hasSetupLine(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "# ") {
			continue
		}
		return setupRe.MatchString(line)
	}
	return false
}

// plainText flattens inline content, keeping code spans in backticks so
// subjects can still be recognized.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(node.Value)
			case *ast.CodeSpan:
				b.WriteByte('`')
				walk(node)
				b.WriteByte('`')
			case *ast.AutoLink:
				b.Write(node.Label(source))
			default:
				walk(node)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
