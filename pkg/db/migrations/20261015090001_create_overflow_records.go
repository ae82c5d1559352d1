package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/db"
)

// Migration20261015090001CreateOverflowRecords creates the store for records
// demoted past a section ceiling.
func Migration20261015090001CreateOverflowRecords() db.Migration {
	return db.Migration{
		Version:     20261015090001,
		Description: "Create overflow_records table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS overflow_records (
					record_id TEXT PRIMARY KEY,
					entry TEXT NOT NULL REFERENCES entries(name) ON DELETE CASCADE,
					section TEXT NOT NULL,
					summary TEXT NOT NULL,
					payload TEXT NOT NULL,
					demoted_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create overflow_records table")
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_overflow_entry ON overflow_records(entry, demoted_at)`); err != nil {
				return errors.Wrap(err, "failed to create overflow index")
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS overflow_records")
			return errors.Wrap(err, "failed to drop overflow_records table")
		},
	}
}
