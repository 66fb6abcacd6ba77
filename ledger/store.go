/*
store.go - Persistence collaborator interfaces

PURPOSE:
  Defines the contract between the bookkeeping engine and the database.
  Different implementations can use SQLite or in-memory storage; the engine
  never sees SQL or the store's concurrency machinery.

THE ONE SHARED RESOURCE:
  The cumulative totals record is the single shared mutable resource. Every
  mutation goes through UpdateTotals (an atomic read-modify-write) or through
  one of the coupled *WithTotals operations; a plain overwrite is not part of
  the contract. The store's transaction primitive is the sole concurrency
  control: multiple app instances may share one database, so the engine
  must not layer its own locking on top.

COUPLED WRITES:
  A report mutation and its totals adjustment are one transaction. If the
  report write would fail, the totals write must not survive, and vice versa.
  This is what keeps every report's CumulativeTotalsAtEndOfReport snapshot
  exactly consistent with the ledger state immediately after it was applied.
  The same applies to member removal and its compensating adjustment.

FAILURE MODES:
  Any write may fail with a connectivity or constraint error. Implementations
  map duplicate (month, year) constraint violations to ErrDuplicateReport and
  aborted totals transactions to ErrTotalsConflict. Partial state is never
  persisted.

IMPLEMENTATIONS:
  - store/sqlite: production store, one sql.Tx per mutation
  - ledger/store: in-memory store for tests and dev

SEE ALSO:
  - society package: the only caller of the mutating operations
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMBER STORE
// =============================================================================

type MemberStore interface {
	// GetMember returns the member or ErrMemberNotFound.
	GetMember(ctx context.Context, id MemberID) (*Member, error)

	// ListMembers returns all members ordered by normalized name.
	ListMembers(ctx context.Context) ([]Member, error)

	// AddMember persists a new member and returns it with a server-assigned
	// id and creation time.
	AddMember(ctx context.Context, name, nameLowercase string) (*Member, error)

	// RemoveMemberWithTotals deletes the member and applies the given net
	// deltas (normally the negation of the member's all-time contribution)
	// to the cumulative totals in ONE transaction, returning the resulting
	// snapshot. Returns ErrMemberNotFound if the member does not exist.
	RemoveMemberWithTotals(ctx context.Context, id MemberID, netSavings, netLoan decimal.Decimal) (CumulativeTotals, error)

	// DeleteAllMembers removes every member. Full data reset only.
	DeleteAllMembers(ctx context.Context) error
}

// =============================================================================
// REPORT STORE
// =============================================================================

type ReportStore interface {
	// GetReport returns the report or ErrReportNotFound.
	GetReport(ctx context.Context, id ReportID) (*MonthlyReport, error)

	// ListReports returns all reports ordered by creation time descending.
	ListReports(ctx context.Context) ([]MonthlyReport, error)

	// ListReportsByYear returns the year's reports ordered by creation time
	// ascending.
	ListReportsByYear(ctx context.Context, year int) ([]MonthlyReport, error)

	// FindReportByMonthYear returns the id of the report for (month, year),
	// or "" if none exists.
	FindReportByMonthYear(ctx context.Context, month Month, year int) (ReportID, error)

	// SaveReportWithTotals persists a new report and applies its net effect
	// to the cumulative totals in ONE transaction. The stored report carries
	// a server-assigned id, a server-assigned creation time, and the
	// resulting totals snapshot. A concurrent create for the same
	// (month, year) fails with ErrDuplicateReport.
	SaveReportWithTotals(ctx context.Context, report MonthlyReport, netSavings, netLoan decimal.Decimal) (*MonthlyReport, error)

	// UpdateReportWithTotals replaces the report's entries, totals, and
	// snapshot, applies the given deltas to the cumulative totals, appends
	// an edit marker, and sets UpdatedAt - all in ONE transaction. CreatedAt
	// is preserved. Returns the updated report.
	UpdateReportWithTotals(ctx context.Context, id ReportID, entries []ReportEntry, totals MonthlyTotals, netSavingsDelta, netLoanDelta decimal.Decimal) (*MonthlyReport, error)

	// DeleteReportWithTotals applies the given deltas (the negation of the
	// report's active-member net effect) to the cumulative totals and then
	// deletes the report, in ONE transaction, returning the resulting
	// snapshot. The adjustment precedes the delete so a failure never leaves
	// stale totals without the record to recompute from.
	DeleteReportWithTotals(ctx context.Context, id ReportID, netSavings, netLoan decimal.Decimal) (CumulativeTotals, error)

	// DeleteAllReports removes every report. Full data reset only.
	DeleteAllReports(ctx context.Context) error
}

// =============================================================================
// TOTALS STORE
// =============================================================================

type TotalsStore interface {
	// TotalsSnapshot returns the current cumulative totals, initializing the
	// record to {0, 0} if it does not exist yet.
	TotalsSnapshot(ctx context.Context) (CumulativeTotals, error)

	// UpdateTotals runs fn against the current totals inside a transaction
	// and persists the returned value with a server-assigned timestamp,
	// returning the new snapshot. Concurrent updates never lose a write;
	// an aborted transaction surfaces ErrTotalsConflict.
	UpdateTotals(ctx context.Context, fn func(current CumulativeTotals) CumulativeTotals) (CumulativeTotals, error)

	// DeleteTotals removes the totals record. Full data reset only.
	DeleteTotals(ctx context.Context) error
}

// Store is the full persistence collaborator.
type Store interface {
	MemberStore
	ReportStore
	TotalsStore
}
