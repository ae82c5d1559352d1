// Package pipeline runs a batch of incoming documents through the
// classifier, extractor, merger and writer, and collects every outcome into
// a ChangeReport. Each entry is merged and written by exactly one worker,
// so entries never see concurrent writers. A failing entry is recorded in
// the report and the rest of the batch carries on.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/makgunay/claude-swift-skills/pkg/classifier"
	"github.com/makgunay/claude-swift-skills/pkg/extractor"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/merger"
	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/store"
	"github.com/makgunay/claude-swift-skills/pkg/telemetry"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
	"github.com/makgunay/claude-swift-skills/pkg/writer"
)

// DefaultWorkers is the number of entries processed concurrently.
const DefaultWorkers = 4

// Pipeline ingests documents into the knowledge base.
type Pipeline struct {
	store          store.Store
	rules          *ruleset.Ruleset
	workers        int
	dryRun         bool
	createUnmapped bool
	into           string
	skillsDir      string
	ceiling        int
	retryAttempts  uint
	now            func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the number of entries merged concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDryRun runs every stage but persists nothing.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// WithCreateUnmapped creates a new entry, named after the document, for
// each document no rule claims.
func WithCreateUnmapped(create bool) Option {
	return func(p *Pipeline) { p.createUnmapped = create }
}

// WithInto folds unmapped documents into the named entry.
func WithInto(entry string) Option {
	return func(p *Pipeline) { p.into = strings.TrimSpace(entry) }
}

// WithSkillsDir renders written entries under dir.
func WithSkillsDir(dir string) Option {
	return func(p *Pipeline) { p.skillsDir = dir }
}

// WithCeiling sets the section ceiling for entries without a rule override.
func WithCeiling(n int) Option {
	return func(p *Pipeline) { p.ceiling = n }
}

// WithRetryAttempts sets how often a busy database is retried per write.
func WithRetryAttempts(n uint) Option {
	return func(p *Pipeline) { p.retryAttempts = n }
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline reading and writing st and routing with rules.
// The store may be nil for dry runs, in which case every entry is new.
func New(st store.Store, rules *ruleset.Ruleset, opts ...Option) *Pipeline {
	if rules == nil {
		rules = ruleset.Empty()
	}
	p := &Pipeline{
		store:         st,
		rules:         rules,
		workers:       DefaultWorkers,
		retryAttempts: 5,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of a run.
type Result struct {
	Report          *kb.ChangeReport
	Classifications []kb.ClassificationResult
	// Diffs holds the unified diff of every changed entry's SKILL.md.
	Diffs map[string]string
}

// seed describes an entry the run may have to create.
type seed struct {
	description string
	keywords    []string
	ceiling     int
}

type job struct {
	entry   string
	seed    seed
	results []*extractor.Result
}

// Run ingests docs. It only returns an error when the run itself cannot
// complete, such as a cancelled context or a report that cannot be saved;
// per-entry failures are recorded in the report instead.
func (p *Pipeline) Run(ctx context.Context, docs []kb.IncomingDocument) (*Result, error) {
	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID)

	report := kb.NewChangeReport(runID, p.now())
	report.DryRun = p.dryRun
	report.Documents = len(docs)
	result := &Result{Report: report, Diffs: make(map[string]string)}

	err := telemetry.WithSpan(ctx, "pipeline.run", func(ctx context.Context) error {
		sorted := append([]kb.IncomingDocument(nil), docs...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if !sorted[i].Time.Equal(sorted[j].Time) {
				return sorted[i].Time.Before(sorted[j].Time)
			}
			return sorted[i].Name < sorted[j].Name
		})

		telemetry.WithSpanFunc(ctx, "pipeline.classify", func(ctx context.Context) {
			result.Classifications = classifier.ClassifyAll(sorted, p.rules)
		}, attribute.Int("documents", len(sorted)))

		jobs := p.route(ctx, sorted, result.Classifications, report)

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for _, j := range jobs {
			j := j
			g.Go(func() error {
				diff := p.processEntry(gctx, j, report)
				if diff != "" {
					mu.Lock()
					result.Diffs[j.entry] = diff
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "run interrupted")
		}

		report.FinishedAt = p.now()
		if p.dryRun || p.store == nil {
			return nil
		}
		return errors.Wrap(p.store.SaveReport(ctx, report), "failed to save run report")
	}, attribute.String("run_id", runID), attribute.Bool("dry_run", p.dryRun))
	if err != nil {
		return result, err
	}

	logger.G(ctx).WithField("documents", report.Documents).
		WithField("entries", len(report.Entries)).
		WithField("changes", len(report.Changes)).
		WithField("unresolved", len(report.Unresolved)).
		Info("run complete")

	return result, nil
}

// route assigns each document to its target entries, extracts and screens
// its records, and groups the results per entry in document time order.
func (p *Pipeline) route(ctx context.Context, docs []kb.IncomingDocument, classes []kb.ClassificationResult, report *kb.ChangeReport) []*job {
	byEntry := make(map[string]*job)
	var order []string

	add := func(entry string, s seed, res *extractor.Result) {
		j, ok := byEntry[entry]
		if !ok {
			j = &job{entry: entry, seed: s}
			byEntry[entry] = j
			order = append(order, entry)
		}
		j.results = append(j.results, res)
	}

	telemetry.WithSpanFunc(ctx, "pipeline.extract", func(ctx context.Context) {
		for i, doc := range docs {
			class := classes[i]
			dctx := logger.WithDocument(ctx, doc.Name)
			telemetry.AddEvent(ctx, "document.classified",
				attribute.String("document", doc.Name),
				attribute.StringSlice("entries", class.EntryNames()),
				attribute.Bool("unmapped", class.Unmapped),
			)

			targets := class.EntryNames()
			var unmappedSeed *seed
			if class.Unmapped {
				entry, s, ok := p.routeUnmapped(doc)
				if !ok {
					logger.G(dctx).WithField("reason", class.Explanation).Info("document unresolved")
					report.AddUnresolved(doc.Name, class.Explanation)
					continue
				}
				targets = []string{entry}
				unmappedSeed = &s
			}

			for _, entry := range targets {
				s := p.seedFor(entry)
				if unmappedSeed != nil && !p.rules.HasEntry(entry) {
					s = *unmappedSeed
				}
				res := extractor.Extract(dctx, doc, entry)
				valid, rejected := writer.Screen(res)
				for _, r := range rejected {
					logger.G(dctx).WithField(logger.FieldEntry, entry).Warn(r.Detail)
				}
				report.Append(rejected...)
				add(entry, s, valid)
			}
		}
	})

	sort.Strings(order)
	jobs := make([]*job, 0, len(order))
	for _, name := range order {
		jobs = append(jobs, byEntry[name])
	}
	return jobs
}

func (p *Pipeline) routeUnmapped(doc kb.IncomingDocument) (string, seed, bool) {
	switch {
	case p.into != "":
		return p.into, p.seedFor(p.into), true
	case p.createUnmapped:
		name := Slug(doc.Name)
		if name == "" {
			return "", seed{}, false
		}
		keywords := classifier.Tokenize(doc.Content)
		if len(keywords) > maxSeedKeywords {
			keywords = keywords[:maxSeedKeywords]
		}
		return name, seed{
			description: fmt.Sprintf("Knowledge collected from %s", doc.Name),
			keywords:    keywords,
		}, true
	}
	return "", seed{}, false
}

const maxSeedKeywords = 12

func (p *Pipeline) seedFor(entry string) seed {
	description := p.rules.DescriptionFor(entry)
	if description == "" {
		description = fmt.Sprintf("Knowledge entry for %s", entry)
	}
	return seed{
		description: description,
		keywords:    p.rules.KeywordsFor(entry),
		ceiling:     p.rules.CeilingOverride(entry),
	}
}

// processEntry merges and writes one entry and returns its diff when it
// changed.
func (p *Pipeline) processEntry(ctx context.Context, j *job, report *kb.ChangeReport) string {
	ctx = logger.WithEntry(ctx, j.entry)
	var diff string

	err := telemetry.WithSpan(ctx, "pipeline.entry", func(ctx context.Context) error {
		current, overflow, created, err := p.load(ctx, j)
		if err != nil {
			return err
		}

		outcome, err := merger.Merge(ctx, current, j.results, merger.WithOverflow(overflow))
		if err != nil {
			return errors.Wrapf(err, "failed to merge entry %s", j.entry)
		}
		report.Append(outcome.Changes...)

		empty := true
		for _, section := range kb.SectionOrder {
			if outcome.Entry.Count(section) > 0 {
				empty = false
			}
		}
		if !outcome.Changed() || (created && empty) {
			report.SetAction(j.entry, kb.ActionNone)
			telemetry.SetAttributes(ctx, attribute.String("action", string(kb.ActionNone)))
			return nil
		}

		written, err := p.writer(j.entry).Write(ctx, outcome.Entry)
		if err != nil {
			return err
		}
		report.Append(written.Changes...)

		action := kb.ActionUpdated
		if created {
			action = kb.ActionCreated
		}
		report.SetAction(j.entry, action)
		telemetry.SetAttributes(ctx,
			attribute.String("action", string(action)),
			attribute.Int("changes", len(outcome.Changes)+len(written.Changes)),
			attribute.Int("demoted", len(written.Overflow)),
		)
		diff = outcome.Diff
		return nil
	}, attribute.String("entry", j.entry), attribute.Int("documents", len(j.results)))

	if err != nil {
		logger.G(ctx).WithError(err).Error("entry failed")
		report.Append(kb.Change{Entry: j.entry, Kind: kb.ChangeFailed, Detail: err.Error()})
		report.SetAction(j.entry, kb.ActionNone)
		return ""
	}
	return diff
}

// load returns the stored entry with its overflow, or a new one seeded from
// the ruleset. The rule ceiling is re-read on every load so ruleset edits
// reach entries that already exist.
func (p *Pipeline) load(ctx context.Context, j *job) (*kb.Entry, []kb.OverflowRecord, bool, error) {
	if p.store != nil {
		current, err := p.store.GetEntry(ctx, j.entry)
		if err == nil {
			overflow, err := p.store.ListOverflow(ctx, j.entry)
			if err != nil {
				return nil, nil, false, errors.Wrapf(err, "failed to load overflow of %s", j.entry)
			}
			current.Ceiling = j.seed.ceiling
			return current, overflow, false, nil
		}
		if !kb.IsNotFound(err) {
			return nil, nil, false, err
		}
	}
	entry := kb.NewEntry(j.entry, j.seed.description)
	entry.Keywords = j.seed.keywords
	entry.Ceiling = j.seed.ceiling
	return entry, nil, true, nil
}

func (p *Pipeline) writer(entry string) *writer.Writer {
	return writer.New(p.store,
		writer.WithCeiling(p.rules.CeilingFor(entry, p.ceiling)),
		writer.WithDryRun(p.dryRun),
		writer.WithSkillsDir(p.skillsDir),
		writer.WithRetryAttempts(p.retryAttempts),
		writer.WithClock(p.now),
	)
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives an entry name from a document name.
func Slug(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(base), "-"), "-")
}
