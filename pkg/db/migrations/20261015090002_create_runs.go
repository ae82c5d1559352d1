package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/db"
)

// Migration20261015090002CreateRuns creates the runs and changes tables that
// persist change reports.
func Migration20261015090002CreateRuns() db.Migration {
	return db.Migration{
		Version:     20261015090002,
		Description: "Create runs and changes tables",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					dry_run INTEGER NOT NULL DEFAULT 0,
					documents INTEGER NOT NULL DEFAULT 0,
					entries TEXT NOT NULL,
					unresolved TEXT NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create runs table")
			}

			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS changes (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					entry TEXT NOT NULL,
					kind TEXT NOT NULL,
					section TEXT NOT NULL DEFAULT '',
					record_id TEXT NOT NULL DEFAULT '',
					document TEXT NOT NULL DEFAULT '',
					detail TEXT NOT NULL,
					PRIMARY KEY (run_id, seq)
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create changes table")
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`); err != nil {
				return errors.Wrap(err, "failed to create runs index")
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			if _, err := tx.Exec("DROP TABLE IF EXISTS changes"); err != nil {
				return errors.Wrap(err, "failed to drop changes table")
			}
			if _, err := tx.Exec("DROP TABLE IF EXISTS runs"); err != nil {
				return errors.Wrap(err, "failed to drop runs table")
			}
			return nil
		},
	}
}
