package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/db"
)

// Migration20261015090000CreateEntries creates the entries and records tables.
func Migration20261015090000CreateEntries() db.Migration {
	return db.Migration{
		Version:     20261015090000,
		Description: "Create entries and records tables",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS entries (
					name TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					keywords TEXT NOT NULL,
					ceiling INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create entries table")
			}

			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS records (
					id TEXT PRIMARY KEY,
					entry TEXT NOT NULL REFERENCES entries(name) ON DELETE CASCADE,
					section TEXT NOT NULL,
					position INTEGER NOT NULL,
					status TEXT NOT NULL,
					payload TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create records table")
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_records_entry_section ON records(entry, section, position)`); err != nil {
				return errors.Wrap(err, "failed to create records index")
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			if _, err := tx.Exec("DROP TABLE IF EXISTS records"); err != nil {
				return errors.Wrap(err, "failed to drop records table")
			}
			if _, err := tx.Exec("DROP TABLE IF EXISTS entries"); err != nil {
				return errors.Wrap(err, "failed to drop entries table")
			}
			return nil
		},
	}
}
