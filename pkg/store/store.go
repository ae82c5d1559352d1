// Package store defines persistence of the knowledge base: entries with
// their visible records, the overflow store, and run reports.
package store

import (
	"context"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Store is the knowledge base persistence layer. SaveEntry replaces the
// visible records of an entry and appends overflow in one transaction.
type Store interface {
	GetEntry(ctx context.Context, name string) (*kb.Entry, error)
	ListEntries(ctx context.Context) ([]kb.EntrySummary, error)
	SaveEntry(ctx context.Context, entry *kb.Entry, overflow []kb.OverflowRecord) error
	ListOverflow(ctx context.Context, name string) ([]kb.OverflowRecord, error)

	SaveReport(ctx context.Context, report *kb.ChangeReport) error
	GetReport(ctx context.Context, runID string) (*kb.ChangeReport, error)
	ListReports(ctx context.Context, limit int) ([]kb.RunSummary, error)

	Close() error
}
