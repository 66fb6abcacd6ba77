/*
errors.go - Centralized error types for the bookkeeping engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The service layer wraps these with operation context; the API layer maps
  them to HTTP statuses via the Is* helpers.

ERROR CATEGORIES:
  1. Validation errors - business rule violations; recoverable, nothing mutated
  2. Not-found errors  - stale ids; recoverable, caller must reload
  3. Concurrency errors - totals transaction aborted; recoverable via retry,
     but the engine never auto-retries
  4. Consistency errors - the books disagree with the ledger; requires manual
     reconciliation, never auto-healed

USAGE:
  if errors.Is(err, ledger.ErrDuplicateReport) { ... }
  var short *ledger.InsufficientSavingsError
  if errors.As(err, &short) { ... short.Available ... }

SEE ALSO:
  - store.go: store implementations return these
  - society package: operation boundaries wrap these
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyEntries is returned when creating a report with no entries.
	ErrEmptyEntries = errors.New("report entries must not be empty")

	// ErrNegativeAmount is returned when any entry amount is negative.
	ErrNegativeAmount = errors.New("amounts must not be negative")

	// ErrInsufficientSavings is returned when a withdrawal exceeds the
	// member's net savings as of the report date.
	ErrInsufficientSavings = errors.New("insufficient savings")

	// ErrNoRepayableLoan is returned when a repayment is entered for a member
	// with no outstanding loan as of the report date.
	ErrNoRepayableLoan = errors.New("no repayable loan")

	// ErrExcessRepayment is returned when a repayment exceeds the member's
	// outstanding loan as of the report date.
	ErrExcessRepayment = errors.New("repayment exceeds outstanding loan")

	// ErrInsufficientCash is returned when loan disbursement exceeds the
	// society's cash on hand.
	ErrInsufficientCash = errors.New("insufficient cash on hand")

	// ErrDuplicateReport is returned when a report already exists for the
	// same month and year.
	ErrDuplicateReport = errors.New("report already exists for month and year")

	// ErrDuplicateEntry is returned when a report carries two entries for
	// the same member.
	ErrDuplicateEntry = errors.New("duplicate entry for member in report")

	// ErrDuplicateMember is returned when adding a member whose name already
	// exists (case-insensitive).
	ErrDuplicateMember = errors.New("member name already exists")

	// ErrEmptyMemberName is returned when adding a member with a blank name.
	ErrEmptyMemberName = errors.New("member name must not be empty")

	// ErrInvalidMonth is returned for a month label outside the fixed twelve
	// or a non-positive year.
	ErrInvalidMonth = errors.New("invalid month or year")

	// ErrReportNotFound is returned when a report id does not exist.
	ErrReportNotFound = errors.New("report not found")

	// ErrMemberNotFound is returned when a member id does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrTotalsConflict is returned when an atomic totals update aborts due
	// to contention. The caller decides whether to retry.
	ErrTotalsConflict = errors.New("cumulative totals update conflict")

	// ErrLedgerInconsistent is returned by the audit when the stored totals
	// disagree with the recomputed books. Not auto-healing.
	ErrLedgerInconsistent = errors.New("ledger inconsistent with reports")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientSavingsError details a withdrawal that exceeds the member's
// net savings as of the report's effective date.
type InsufficientSavingsError struct {
	MemberID  MemberID
	Available decimal.Decimal
	Requested decimal.Decimal
	AsOf      time.Time
}

func (e *InsufficientSavingsError) Error() string {
	return fmt.Sprintf("insufficient savings for member %s: available %s, requested %s (as of %s)",
		e.MemberID, e.Available, e.Requested, e.AsOf.Format("2006-01-02"))
}

func (e *InsufficientSavingsError) Unwrap() error { return ErrInsufficientSavings }

// ExcessRepaymentError details a repayment that exceeds the member's
// outstanding loan.
type ExcessRepaymentError struct {
	MemberID    MemberID
	Outstanding decimal.Decimal
	Requested   decimal.Decimal
	AsOf        time.Time
}

func (e *ExcessRepaymentError) Error() string {
	return fmt.Sprintf("repayment %s exceeds outstanding loan %s for member %s (as of %s)",
		e.Requested, e.Outstanding, e.MemberID, e.AsOf.Format("2006-01-02"))
}

func (e *ExcessRepaymentError) Unwrap() error { return ErrExcessRepayment }

// InsufficientCashError details a loan disbursement the society cannot fund.
type InsufficientCashError struct {
	CashOnHand decimal.Decimal
	Staged     decimal.Decimal // disbursements already staged in the draft
	Requested  decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash on hand %s: draft already stages %s, requested %s",
		e.CashOnHand, e.Staged, e.Requested)
}

func (e *InsufficientCashError) Unwrap() error { return ErrInsufficientCash }

// DuplicateReportError identifies the existing report blocking a create.
type DuplicateReportError struct {
	Month      Month
	Year       int
	ExistingID ReportID
}

func (e *DuplicateReportError) Error() string {
	return fmt.Sprintf("report already exists for %s %d (id: %s)", e.Month, e.Year, e.ExistingID)
}

func (e *DuplicateReportError) Unwrap() error { return ErrDuplicateReport }

// InvalidMonthError identifies a month label or year that cannot be placed
// on the timeline.
type InvalidMonthError struct {
	Month Month
	Year  int
}

func (e *InvalidMonthError) Error() string {
	return fmt.Sprintf("invalid month %q or year %d", e.Month, e.Year)
}

func (e *InvalidMonthError) Unwrap() error { return ErrInvalidMonth }

// LedgerDriftError reports the gap between stored totals and the recomputed
// books. Surfaced by the audit; requires manual reconciliation.
type LedgerDriftError struct {
	StoredSavings   decimal.Decimal
	StoredLoan      decimal.Decimal
	ComputedSavings decimal.Decimal
	ComputedLoan    decimal.Decimal
}

func (e *LedgerDriftError) Error() string {
	return fmt.Sprintf("ledger drift: stored {savings %s, loan %s}, computed {savings %s, loan %s}",
		e.StoredSavings, e.StoredLoan, e.ComputedSavings, e.ComputedLoan)
}

func (e *LedgerDriftError) Unwrap() error { return ErrLedgerInconsistent }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for business-rule violations: recoverable, and
// guaranteed to have mutated nothing.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyEntries) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrInsufficientSavings) ||
		errors.Is(err, ErrNoRepayableLoan) ||
		errors.Is(err, ErrExcessRepayment) ||
		errors.Is(err, ErrInsufficientCash) ||
		errors.Is(err, ErrDuplicateReport) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrDuplicateMember) ||
		errors.Is(err, ErrEmptyMemberName) ||
		errors.Is(err, ErrInvalidMonth)
}

// IsNotFound returns true when the referenced record no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound) ||
		errors.Is(err, ErrMemberNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTotalsConflict)
}

// IsConsistency returns true for errors that require manual reconciliation.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrLedgerInconsistent)
}
