package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

const testRuleset = `
version: 1
threshold: 0.3
rules:
  - entry: swiftdata
    keywords: [swiftdata, "@model", modelcontainer, fetchdescriptor]
  - entry: concurrency
    keywords: ["@mainactor", actor, sendable, task.detached]
  - entry: liquid-glass
    keywords: [liquid glass, glasseffect]
    files: ["*glass*"]
  - entry: storekit
    keywords: [storekit, product.purchase]
    weight: 0.5
`

func mustRuleset(t *testing.T) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Parse([]byte(testRuleset))
	require.NoError(t, err)
	return rs
}

func doc(name, content string) kb.IncomingDocument {
	return kb.IncomingDocument{Name: name, Content: content, Time: time.Now()}
}

func TestTokenize(t *testing.T) {
	text := "import SwiftData\n\n" +
		"@Model final class Item {}\n" +
		"let container = try ModelContainer(for: Item.self)\n" +
		"Apply the Liquid Glass material with .glassEffect() on iOS 26.\n"

	tokens := Tokenize(text)

	for _, want := range []string{"swiftdata", "@model", "modelcontainer", "item.self", "liquid glass", "glasseffect", "item"} {
		assert.Contains(t, tokens, want)
	}
	for _, unwanted := range []string{"the", "with", "let", "on"} {
		assert.NotContains(t, tokens, unwanted)
	}
	assert.IsIncreasing(t, tokens)
}

func TestTokenizeProseOnly(t *testing.T) {
	assert.Empty(t, Tokenize("this is all lower case prose with no code at all"))
}

func TestOverlap(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}, "z": {}}

	score, shared := Overlap(a, b)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, []string{"y", "z"}, shared)

	score, shared = Overlap(a, map[string]struct{}{})
	assert.Zero(t, score)
	assert.Nil(t, shared)
}

func TestClassify(t *testing.T) {
	rs := mustRuleset(t)

	t.Run("single entry", func(t *testing.T) {
		res := Classify(doc("notes.md", "import SwiftData\n@Model class Trip {}\nUse FetchDescriptor to query."), rs)
		require.False(t, res.Unmapped)
		require.Equal(t, []string{"swiftdata"}, res.EntryNames())
		assert.Equal(t, []string{"@model", "fetchdescriptor", "swiftdata"}, res.Entries[0].Matched)
		assert.Contains(t, res.Explanation, "swiftdata=")
	})

	t.Run("cross-cutting document maps to several entries", func(t *testing.T) {
		res := Classify(doc("mixed.md", "@Model class A {}\nimport SwiftData\n@MainActor final class VM: Sendable {}"), rs)
		require.False(t, res.Unmapped)
		assert.ElementsMatch(t, []string{"swiftdata", "concurrency"}, res.EntryNames())
	})

	t.Run("filename glob routes outright", func(t *testing.T) {
		res := Classify(doc("liquid-glass-notes.md", "nothing recognisable here"), rs)
		require.False(t, res.Unmapped)
		assert.Equal(t, []string{"liquid-glass"}, res.EntryNames())
		assert.Equal(t, []string{"*glass*"}, res.Entries[0].Globs)
	})

	t.Run("weight scales score below threshold", func(t *testing.T) {
		res := Classify(doc("shop.md", "import StoreKit\nlet products = try await Product.products(for: ids)\nlet r = try await p.purchase()"), rs)
		assert.True(t, res.Unmapped)
		assert.Contains(t, res.Explanation, "storekit=")
	})

	t.Run("no keywords", func(t *testing.T) {
		res := Classify(doc("prose.md", "just some words about nothing in particular"), rs)
		assert.True(t, res.Unmapped)
		assert.Equal(t, "no extractable keywords", res.Explanation)
	})

	t.Run("keywords but no overlap", func(t *testing.T) {
		res := Classify(doc("other.md", "Configure the WidgetKit TimelineProvider carefully."), rs)
		assert.True(t, res.Unmapped)
		assert.Equal(t, "no entry signature overlaps the document keywords", res.Explanation)
	})
}

func TestClassifyDeterministic(t *testing.T) {
	rs := mustRuleset(t)
	d := doc("mixed.md", "@Model class A {}\nimport SwiftData\n@MainActor actor Store {}\nTask.detached { }")

	first := Classify(d, rs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(d, rs))
	}
}

func TestClassifyMinMatches(t *testing.T) {
	rs, err := ruleset.Parse([]byte(`
version: 1
threshold: 0.1
min_matches: 2
rules:
  - entry: swiftdata
    keywords: [swiftdata, modelcontainer]
`))
	require.NoError(t, err)

	res := Classify(doc("a.md", "import SwiftData"), rs)
	assert.True(t, res.Unmapped)

	res = Classify(doc("b.md", "import SwiftData\nlet c = ModelContainer(for: A.self)"), rs)
	assert.False(t, res.Unmapped)
}

func TestClassifyAll(t *testing.T) {
	rs := mustRuleset(t)
	results := ClassifyAll([]kb.IncomingDocument{
		doc("a.md", "import SwiftData"),
		doc("b.md", "plain words only"),
	}, rs)
	require.Len(t, results, 2)
	assert.Equal(t, "a.md", results[0].Document)
	assert.True(t, results[1].Unmapped)
}
