// Package document loads the incoming documents of a pipeline run from
// files, globs or inline text.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	gtext "github.com/yuin/goldmark/text"

	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Frontmatter keys honoured on incoming documents.
type frontmatter struct {
	Date       string
	MinVersion string
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Load expands the given paths and doublestar globs and reads every match.
// Files that fail to load are collected into the returned error while the
// rest are still returned, ordered by document time then name.
func Load(ctx context.Context, patterns ...string) ([]kb.IncomingDocument, error) {
	var result *multierror.Error

	seen := make(map[string]bool)
	var paths []string
	names := make(map[string]string)
	for _, pattern := range patterns {
		root, matches, err := expand(pattern)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if !seen[abs] {
				seen[abs] = true
				paths = append(paths, m)
				names[m] = nameFor(root, m)
			}
		}
	}

	docs := make([]kb.IncomingDocument, 0, len(paths))
	for _, path := range paths {
		doc, err := loadFile(path, names[path])
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("skipping unreadable document")
			result = multierror.Append(result, err)
			continue
		}
		docs = append(docs, doc)
	}

	Sort(docs)
	return docs, result.ErrorOrNil()
}

var extensions = []string{"md", "markdown", "txt", "html", "htm"}

// Supported reports whether a directory walk would pick up the file.
func Supported(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsBinary reports whether the first 512 bytes of the file hold a NUL byte.
func IsBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// expand resolves a pattern into files together with the root their
// document names are taken relative to.
func expand(pattern string) (string, []string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		info, err := os.Stat(pattern)
		if err != nil {
			return "", nil, errors.Wrapf(err, "failed to stat %s", pattern)
		}
		if info.IsDir() {
			_, matches, err := expand(filepath.Join(pattern, "**", "*.{"+strings.Join(extensions, ",")+"}"))
			return pattern, matches, err
		}
		return filepath.Dir(pattern), []string{pattern}, nil
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to expand pattern %s", pattern)
	}
	if len(matches) == 0 {
		return "", nil, errors.Errorf("pattern %s matched no files", pattern)
	}
	sort.Strings(matches)
	return filepath.FromSlash(base), matches, nil
}

// nameFor names a document by its slash-separated path below root, so
// same-named files in different folders stay distinct citations.
func nameFor(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// LoadFile reads one document from disk. The document time is the
// frontmatter date when present, the file modification time otherwise.
func LoadFile(path string) (kb.IncomingDocument, error) {
	return loadFile(path, filepath.Base(path))
}

func loadFile(path, name string) (kb.IncomingDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return kb.IncomingDocument{}, errors.Wrapf(err, "failed to stat %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return kb.IncomingDocument{}, errors.Wrapf(err, "failed to read %s", path)
	}

	doc, err := FromText(name, string(data), info.ModTime())
	if err != nil {
		return kb.IncomingDocument{}, errors.Wrapf(err, "failed to load %s", path)
	}
	doc.Path = path
	return doc, nil
}

// FromText builds a document from an inline blob. HTML input is converted
// to Markdown so the extractor only ever sees one markup.
func FromText(name, text string, modTime time.Time) (kb.IncomingDocument, error) {
	if strings.TrimSpace(name) == "" {
		return kb.IncomingDocument{}, errors.New("document name is required")
	}

	format := DetectFormat(name, text)
	if format == kb.FormatHTML {
		converter := md.NewConverter("", true, nil)
		converted, err := converter.ConvertString(text)
		if err != nil {
			return kb.IncomingDocument{}, errors.Wrap(err, "failed to convert html to markdown")
		}
		text = converted
	}

	docTime := modTime
	if fm, ok := parseFrontmatter(text); ok && fm.Date != "" {
		parsed, err := parseDate(fm.Date)
		if err != nil {
			return kb.IncomingDocument{}, err
		}
		docTime = parsed
	}

	return kb.IncomingDocument{
		Name:    name,
		Content: text,
		Time:    docTime.UTC(),
		Format:  format,
	}, nil
}

// DetectFormat guesses the markup from the file extension, then content.
func DetectFormat(name, text string) kb.Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return kb.FormatHTML
	case ".txt":
		return kb.FormatText
	case ".md", ".markdown":
		return kb.FormatMarkdown
	}
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return kb.FormatHTML
	}
	return kb.FormatMarkdown
}

// MinVersion returns the document-level min_version frontmatter value.
func MinVersion(doc kb.IncomingDocument) string {
	if fm, ok := parseFrontmatter(doc.Content); ok {
		return strings.TrimSpace(fm.MinVersion)
	}
	return ""
}

var frontmatterParser = goldmark.New(goldmark.WithExtensions(meta.Meta)).Parser()

func parseFrontmatter(text string) (frontmatter, bool) {
	var fm frontmatter
	if !strings.HasPrefix(text, "---") {
		return fm, false
	}
	pctx := parser.NewContext()
	frontmatterParser.Parse(gtext.NewReader([]byte(text)), parser.WithContext(pctx))
	raw, err := meta.TryGet(pctx)
	if err != nil || raw == nil {
		return fm, false
	}
	fm.Date = scalar(raw["date"])
	fm.MinVersion = scalar(raw["min_version"])
	return fm, true
}

// scalar flattens a frontmatter value. Unquoted dates may decode as
// time.Time depending on the YAML decoder.
func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised frontmatter date %q", value)
}

// Sort orders documents by time, then by name, which is the order later
// sources override earlier ones in.
func Sort(docs []kb.IncomingDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].Time.Equal(docs[j].Time) {
			return docs[i].Time.Before(docs[j].Time)
		}
		return docs[i].Name < docs[j].Name
	})
}
