/*
Package ledger provides the core bookkeeping engine for a cooperative
savings/loan society.

PURPOSE:
  This package contains the domain types and pure algorithms that keep the
  society's books consistent: monthly report aggregation, as-of-date balance
  replay, and the cumulative totals contract that every mutation must honor.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: an account holder; deleted members leave no tombstone record
  - ReportEntry: one member's transactions inside one monthly report
  - MonthlyReport: the persisted record of a month, with derived totals and
    an immutable snapshot of the society-wide cumulative totals
  - CumulativeTotals: the single global running balance {savings, loan}
  - MemberRef: an entry's member reference with an explicit "deleted" state

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Snapshots are immutable: a report's cumulative totals are captured at
     save time and never live-joined or recomputed for display
  3. Denormalized names: entries carry the member name as it was at entry
     time; renames do not rewrite history
  4. Derived values are recomputable: monthly totals always equal the
     aggregation of the entries they were derived from

SEE ALSO:
  - aggregate.go: entries -> monthly totals
  - replay.go: as-of-date balance computation
  - store.go: persistence collaborator interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type ReportID string

// =============================================================================
// MEMBER
// =============================================================================

// Member is an account holder within the society.
// Deletion is a hard delete: entries referencing the member persist and are
// excluded from all forward balance calculations.
type Member struct {
	ID            MemberID
	Name          string
	NameLowercase string // normalized, for duplicate detection and ordering
	CreatedAt     time.Time
}

// MemberRef resolves an entry's member id against the current member list.
// Member == nil means the member has been deleted; callers render that state
// explicitly instead of relying on a failed map lookup.
type MemberRef struct {
	ID     MemberID
	Member *Member
}

func (r MemberRef) Deleted() bool { return r.Member == nil }

// DisplayName falls back to the entry's denormalized snapshot name when the
// member no longer exists.
func (r MemberRef) DisplayName(snapshot string) string {
	if r.Member != nil {
		return r.Member.Name
	}
	return snapshot
}

// ResolveMembers builds refs for a set of entries against the current member
// list. Entries for deleted members resolve with a nil Member.
func ResolveMembers(entries []ReportEntry, members []Member) []MemberRef {
	byID := make(map[MemberID]*Member, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}
	refs := make([]MemberRef, len(entries))
	for i, e := range entries {
		refs[i] = MemberRef{ID: e.MemberID, Member: byID[e.MemberID]}
	}
	return refs
}

// ActiveMemberIDs returns the id set of the given members.
func ActiveMemberIDs(members []Member) map[MemberID]bool {
	ids := make(map[MemberID]bool, len(members))
	for _, m := range members {
		ids[m.ID] = true
	}
	return ids
}

// =============================================================================
// REPORT ENTRY - one member's transactions within one monthly report
// =============================================================================

// ReportEntry records a member's transactions for one month. All four amounts
// are non-negative; the net effects are derived, never stored.
// MemberName is a denormalized snapshot taken when the entry was created.
type ReportEntry struct {
	MemberID          MemberID
	MemberName        string
	Savings           decimal.Decimal // deposit
	SavingsWithdrawal decimal.Decimal
	LoanDisbursed     decimal.Decimal
	LoanRepayment     decimal.Decimal
}

// NetSavings is deposit minus withdrawal for this entry.
func (e ReportEntry) NetSavings() decimal.Decimal {
	return e.Savings.Sub(e.SavingsWithdrawal)
}

// NetLoan is disbursed minus repaid for this entry.
func (e ReportEntry) NetLoan() decimal.Decimal {
	return e.LoanDisbursed.Sub(e.LoanRepayment)
}

// HasNegativeAmount reports whether any of the entry's amounts is negative.
func (e ReportEntry) HasNegativeAmount() bool {
	return e.Savings.IsNegative() ||
		e.SavingsWithdrawal.IsNegative() ||
		e.LoanDisbursed.IsNegative() ||
		e.LoanRepayment.IsNegative()
}

// =============================================================================
// MONTHLY TOTALS - derived aggregates for one report
// =============================================================================

type MonthlyTotals struct {
	SavingsDeposit    decimal.Decimal
	SavingsWithdrawal decimal.Decimal
	NetSavings        decimal.Decimal // deposit - withdrawal; what moves the ledger
	LoanDisbursed     decimal.Decimal
	LoanRepaid        decimal.Decimal
	NetLoan           decimal.Decimal // disbursed - repaid; what moves the ledger
}

// =============================================================================
// MONTHLY REPORT
// =============================================================================

// MonthlyReport is the persisted record of one month's entries.
// Invariants:
//   - at most one report exists per (Month, Year)
//   - at most one entry per member
//   - CumulativeTotalsAtEndOfReport equals the ledger value immediately after
//     this report's net effect was applied
type MonthlyReport struct {
	ID              ReportID
	AssociationName string
	Month           Month
	Year            int
	Entries         []ReportEntry
	MonthlyTotals   MonthlyTotals

	// Immutable snapshot captured in the same transaction that applied this
	// report's net effect to the cumulative totals.
	CumulativeTotalsAtEndOfReport CumulativeTotals

	CreatedAt time.Time
	UpdatedAt *time.Time

	// EditHistory records edit markers appended on every update.
	EditHistory []EditRecord
}

// EditRecord marks one edit of a report.
type EditRecord struct {
	Timestamp time.Time
	Action    string
}

// EntryFor returns the report's entry for a member, if present.
func (r *MonthlyReport) EntryFor(id MemberID) (ReportEntry, bool) {
	for _, e := range r.Entries {
		if e.MemberID == id {
			return e, true
		}
	}
	return ReportEntry{}, false
}

// =============================================================================
// CUMULATIVE TOTALS - the society-wide running balance
// =============================================================================

// CumulativeTotals is the single global {savings, loan} balance. It is
// initialized to zero on first access and mutated only through atomic
// read-modify-write operations on the store; a direct overwrite is never
// a legal mutation.
type CumulativeTotals struct {
	Savings     decimal.Decimal
	Loan        decimal.Decimal
	LastUpdated time.Time
}

// Apply returns a new snapshot with the given net deltas added.
func (t CumulativeTotals) Apply(netSavings, netLoan decimal.Decimal) CumulativeTotals {
	return CumulativeTotals{
		Savings: t.Savings.Add(netSavings),
		Loan:    t.Loan.Add(netLoan),
	}
}

// CashOnHand is the fund available for loan disbursement: savings minus
// outstanding loan.
func (t CumulativeTotals) CashOnHand() decimal.Decimal {
	return t.Savings.Sub(t.Loan)
}
