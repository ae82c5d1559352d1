// Package migrations holds the knowledge base schema. Versions are
// timestamps (YYYYMMDDHHmmss).
package migrations

import (
	"github.com/makgunay/claude-swift-skills/pkg/db"
)

// All returns every registered migration. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20261015090000CreateEntries(),
		Migration20261015090001CreateOverflowRecords(),
		Migration20261015090002CreateRuns(),
	}
}
