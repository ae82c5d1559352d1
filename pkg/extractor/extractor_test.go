package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

var docTime = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

func extract(t *testing.T, content string) *Result {
	t.Helper()
	doc := kb.IncomingDocument{Name: "wwdc.md", Content: content, Time: docTime, Format: kb.FormatMarkdown}
	return Extract(context.Background(), doc, "swiftdata")
}

func TestExtractPatterns(t *testing.T) {
	res := extract(t, "# Models (iOS 17)\n\n"+
		"Define a model class.\n\n"+
		"```swift\nimport SwiftData\n\n@Model final class Trip {\n    var name: String\n}\n```\n\n"+
		"## Querying\n\n"+
		"```swift\nlet trips = try context.fetch(FetchDescriptor<Trip>())\n```\n")

	require.Len(t, res.Patterns, 2)

	first := res.Patterns[0]
	assert.Equal(t, "Models (iOS 17)", first.Title)
	assert.Equal(t, "swift", first.Language)
	assert.Equal(t, "iOS 17", first.MinVersion)
	assert.Equal(t, kb.StatusProposed, first.Status)
	assert.Equal(t, kb.Sources{{Document: "wwdc.md", Time: docTime}}, first.Sources)
	assert.Equal(t, docTime, first.CreatedAt)
	assert.NotEmpty(t, first.ID)
	assert.Contains(t, first.Code, "@Model final class Trip")

	second := res.Patterns[1]
	assert.Equal(t, "Querying", second.Title)
	assert.Equal(t, kb.UnspecifiedVersion, second.MinVersion)

	require.Len(t, res.Notes, 2, "unversioned pattern without import is flagged twice")
	for _, n := range res.Notes {
		assert.Equal(t, kb.ChangeNeedsReview, n.Kind)
		assert.Equal(t, second.ID, n.RecordID)
		assert.Equal(t, "swiftdata", n.Entry)
		assert.Equal(t, "wwdc.md", n.Document)
	}
}

func TestExtractAvailableAttribute(t *testing.T) {
	res := extract(t, "## Glass\n\n```swift\nimport SwiftUI\n\n@available(iOS 26, *)\nstruct Card: View {}\n```\n")
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, "iOS 26", res.Patterns[0].MinVersion)
	assert.Empty(t, res.Notes)
}

func TestExtractFrontmatterVersion(t *testing.T) {
	res := extract(t, "---\nmin_version: iOS 18\n---\n\n```swift\nimport SwiftUI\nstruct A: View {}\n```\n")
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, "iOS 18", res.Patterns[0].MinVersion)
	assert.Empty(t, res.Notes)
}

func TestExtractConstraints(t *testing.T) {
	res := extract(t, "## State (iOS 17)\n\n"+
		"- Never use `ObservableObject` for new models.\n"+
		"- Replace `@StateObject` with `@State`.\n"+
		"- Use `@Observable` instead of `ObservableObject`.\n"+
		"- Prefer `NavigationStack`.\n")

	require.Len(t, res.Constraints, 4)

	tests := []struct {
		subject     string
		directive   kb.Directive
		replacement string
	}{
		{"ObservableObject", kb.DirectiveAvoid, ""},
		{"@StateObject", kb.DirectiveAvoid, "@State"},
		{"ObservableObject", kb.DirectiveAvoid, "@Observable"},
		{"NavigationStack", kb.DirectiveUse, ""},
	}
	for i, tt := range tests {
		c := res.Constraints[i]
		assert.Equal(t, tt.subject, c.Subject, "constraint %d", i)
		assert.Equal(t, tt.directive, c.Directive, "constraint %d", i)
		assert.Equal(t, tt.replacement, c.Replacement, "constraint %d", i)
		assert.Equal(t, "iOS 17", c.MinVersion, "heading version applies")
	}
	assert.Empty(t, res.Notes)
}

func TestExtractDecisionRules(t *testing.T) {
	res := extract(t, "If the model is shared across scenes, then inject it with `.modelContainer`.\n\n"+
		"When you need background work, use `@ModelActor`.\n")

	require.Len(t, res.DecisionRules, 2)
	assert.Equal(t, "the model is shared across scenes", res.DecisionRules[0].Condition)
	assert.Equal(t, "inject it with `.modelContainer`", res.DecisionRules[0].Outcome)
	assert.Equal(t, "you need background work", res.DecisionRules[1].Condition)
	assert.Equal(t, "use `@ModelActor`", res.DecisionRules[1].Outcome)
	assert.Empty(t, res.Constraints, "branching sentences are not also constraints")
}

func TestExtractReferences(t *testing.T) {
	res := extract(t, "See [Meet SwiftData](https://developer.apple.com/videos/play/wwdc2023/10187/) "+
		"and https://developer.apple.com/documentation/swiftdata for details. "+
		"A [relative](docs/local.md) link is ignored.\n\n"+
		"Again: [Meet SwiftData](https://developer.apple.com/videos/play/wwdc2023/10187/).\n")

	require.Len(t, res.References, 2)
	assert.Equal(t, "Meet SwiftData", res.References[0].Title)
	assert.Equal(t, "https://developer.apple.com/videos/play/wwdc2023/10187/", res.References[0].URL)
	assert.Equal(t, "https://developer.apple.com/documentation/swiftdata", res.References[1].URL)
	assert.Empty(t, res.References[1].Title)
}

func TestExtractProseOnly(t *testing.T) {
	res := extract(t, "# Thoughts\n\nSwiftData makes persistence pleasant. The `ModelContext` tracks changes for you.\n")
	assert.True(t, res.Empty())
	assert.Zero(t, res.Count())
}

func TestExtractArrowInsideCodeIsNotADecision(t *testing.T) {
	res := extract(t, "The body is declared as `var body: some View` and `func make() -> Int` returns a count.\n")
	assert.Empty(t, res.DecisionRules)
}

func TestConstraintFromSentence(t *testing.T) {
	tests := []struct {
		sentence    string
		ok          bool
		subject     string
		directive   kb.Directive
		replacement string
	}{
		{"Don't: call `Task.detached` from views.", true, "Task.detached", kb.DirectiveAvoid, ""},
		{"Do: `@MainActor` on view models.", true, "@MainActor", kb.DirectiveUse, ""},
		{"Instead of `DispatchQueue.main.async`, use `MainActor.run`.", true, "DispatchQueue.main.async", kb.DirectiveAvoid, "MainActor.run"},
		{"`NavigationView` is deprecated in favor of `NavigationStack`.", true, "NavigationView", kb.DirectiveAvoid, "NavigationStack"},
		{"Avoid force unwrapping in production code.", true, "force unwrapping", kb.DirectiveAvoid, ""},
		{"This sentence has no directive.", false, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.sentence, func(t *testing.T) {
			subject, directive, replacement, ok := constraintFromSentence(tt.sentence)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.subject, subject)
			assert.Equal(t, tt.directive, directive)
			assert.Equal(t, tt.replacement, replacement)
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Use `a.b()`. Then stop! Is it done? yes")
	assert.Equal(t, []string{"Use `a.b()`.", "Then stop!", "Is it done?", "yes"}, got)
}

func TestHasSetupLine(t *testing.T) {
	assert.True(t, hasSetupLine("// comment\nimport SwiftUI\n"))
	assert.True(t, hasSetupLine("@testable import App"))
	assert.False(t, hasSetupLine("struct A {}\nimport SwiftUI"))
	assert.False(t, hasSetupLine(""))
}
