// Package sqlite implements the knowledge base store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/db"
	"github.com/makgunay/claude-swift-skills/pkg/db/migrations"
	"github.com/makgunay/claude-swift-skills/pkg/store"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a SQLite database.
type Store struct {
	dbPath string
	db     *sqlx.DB
}

// NewStore opens the database at dbPath and applies pending migrations.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.NewMigrationRunner(sqlDB).Run(ctx, migrations.All()); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return &Store{dbPath: dbPath, db: sqlDB}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// GetEntry loads an entry with its visible records in stored order.
func (s *Store) GetEntry(ctx context.Context, name string) (*kb.Entry, error) {
	var row dbEntry
	err := s.db.GetContext(ctx, &row,
		`SELECT name, description, keywords, ceiling, created_at, updated_at FROM entries WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(kb.ErrEntryNotFound, "entry %s", name)
		}
		return nil, errors.Wrapf(err, "failed to load entry %s", name)
	}

	entry := &kb.Entry{
		Name:        row.Name,
		Description: row.Description,
		Keywords:    row.Keywords.Data,
		Ceiling:     row.Ceiling,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}

	var records []dbRecord
	err = s.db.SelectContext(ctx, &records,
		`SELECT id, entry, section, position, status, payload, created_at
		FROM records WHERE entry = ? ORDER BY section, position`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load records of %s", name)
	}
	for _, r := range records {
		if err := decodeRecord(entry, r); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// ListEntries returns every entry sorted by name.
func (s *Store) ListEntries(ctx context.Context) ([]kb.EntrySummary, error) {
	var summaries []kb.EntrySummary
	err := s.db.SelectContext(ctx, &summaries, `
		SELECT e.name, e.description, e.updated_at,
			(SELECT COUNT(*) FROM records r WHERE r.entry = e.name) AS record_count,
			(SELECT COUNT(*) FROM overflow_records o WHERE o.entry = e.name) AS overflow_count
		FROM entries e
		ORDER BY e.name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entries")
	}
	return summaries, nil
}

// SaveEntry upserts the entry, replaces its visible records and appends
// the demoted records to the overflow store in a single transaction.
func (s *Store) SaveEntry(ctx context.Context, entry *kb.Entry, overflow []kb.OverflowRecord) error {
	rows, err := encodeRecords(entry)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO entries (name, description, keywords, ceiling, created_at, updated_at)
		VALUES (:name, :description, :keywords, :ceiling, :created_at, :updated_at)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			keywords = excluded.keywords,
			ceiling = excluded.ceiling,
			updated_at = excluded.updated_at
	`, dbEntry{
		Name:        entry.Name,
		Description: entry.Description,
		Keywords:    JSONField[[]string]{Data: entry.Keywords},
		Ceiling:     entry.Ceiling,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save entry %s", entry.Name)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE entry = ?`, entry.Name); err != nil {
		return errors.Wrapf(err, "failed to clear records of %s", entry.Name)
	}
	for _, row := range rows {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO records (id, entry, section, position, status, payload, created_at)
			VALUES (:id, :entry, :section, :position, :status, :payload, :created_at)
		`, row)
		if err != nil {
			return errors.Wrapf(err, "failed to save record %s", row.ID)
		}
	}

	for _, o := range overflow {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO overflow_records (record_id, entry, section, summary, payload, demoted_at)
			VALUES (:record_id, :entry, :section, :summary, :payload, :demoted_at)
			ON CONFLICT(record_id) DO NOTHING
		`, dbOverflow{
			RecordID:  o.RecordID,
			Entry:     entry.Name,
			Section:   o.Section,
			Summary:   o.Summary,
			Payload:   string(o.Payload),
			DemotedAt: o.DemotedAt,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to demote record %s", o.RecordID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit entry")
}

// ListOverflow returns the demoted records of an entry, oldest demotion first.
func (s *Store) ListOverflow(ctx context.Context, name string) ([]kb.OverflowRecord, error) {
	var rows []dbOverflow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT record_id, entry, section, summary, payload, demoted_at
		FROM overflow_records WHERE entry = ?
		ORDER BY demoted_at, record_id`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list overflow of %s", name)
	}
	out := make([]kb.OverflowRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOverflowRecord())
	}
	return out, nil
}

// SaveReport persists a run report and its change log.
func (s *Store) SaveReport(ctx context.Context, report *kb.ChangeReport) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, dry_run, documents, entries, unresolved)
		VALUES (:id, :started_at, :finished_at, :dry_run, :documents, :entries, :unresolved)
	`, dbRun{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		DryRun:     report.DryRun,
		Documents:  report.Documents,
		Entries:    JSONField[[]kb.EntryChange]{Data: report.Entries},
		Unresolved: JSONField[[]kb.UnresolvedDocument]{Data: report.Unresolved},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save run %s", report.RunID)
	}

	for i, c := range report.Changes {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO changes (run_id, seq, entry, kind, section, record_id, document, detail)
			VALUES (:run_id, :seq, :entry, :kind, :section, :record_id, :document, :detail)
		`, dbChange{RunID: report.RunID, Seq: i, Change: c})
		if err != nil {
			return errors.Wrapf(err, "failed to save change %d of run %s", i, report.RunID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit report")
}

// GetReport loads a persisted run report.
func (s *Store) GetReport(ctx context.Context, runID string) (*kb.ChangeReport, error) {
	var run dbRun
	err := s.db.GetContext(ctx, &run, `
		SELECT id, started_at, finished_at, dry_run, documents, entries, unresolved
		FROM runs WHERE id = ?`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Errorf("run not found: %s", runID)
		}
		return nil, errors.Wrapf(err, "failed to load run %s", runID)
	}

	var changes []dbChange
	err = s.db.SelectContext(ctx, &changes, `
		SELECT run_id, seq, entry, kind, section, record_id, document, detail
		FROM changes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load changes of run %s", runID)
	}

	report := kb.NewChangeReport(run.ID, run.StartedAt)
	report.FinishedAt = run.FinishedAt
	report.DryRun = run.DryRun
	report.Documents = run.Documents
	report.Entries = run.Entries.Data
	report.Unresolved = run.Unresolved.Data
	for _, c := range changes {
		report.Changes = append(report.Changes, c.Change)
	}
	return report, nil
}

// ListReports returns the most recent runs first. A non-positive limit
// lists every run.
func (s *Store) ListReports(ctx context.Context, limit int) ([]kb.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []kb.RunSummary
	err := s.db.SelectContext(ctx, &runs, `
		SELECT r.id, r.started_at, r.finished_at, r.dry_run, r.documents,
			(SELECT COUNT(*) FROM changes c WHERE c.run_id = r.id) AS changes
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

