/*
validate.go - Entry-time balance checks against replayed history

PURPOSE:
  Before an entry is staged into a draft report, its amounts must be
  covered: a withdrawal by the member's replayed net savings, a repayment
  by the member's outstanding loan, a disbursement by the society's cash
  on hand. These checks read history, they never mutate it.

BATCH SEMANTICS:
  The cash-on-hand check is a whole-batch precondition: the society's fund
  is one shared pool, so if the batch as a whole cannot be funded, nothing
  is accepted. Per-member balance checks are independent of each other, so
  a failing member is reported and skipped while the rest of the batch
  proceeds.

SEE ALSO:
  - ledger/replay.go: the as-of-date balances these checks read
  - service.go: checkEntries, the structural half of validation
*/
package society

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khata/society-engine/ledger"
)

// EntryFailure pairs a rejected batch candidate with the reason.
type EntryFailure struct {
	Entry ledger.ReportEntry
	Err   error
}

// ValidateEntry checks one candidate entry against the draft report it is
// about to join. draft holds the entries already staged for the same month
// and year; their disbursements count against cash on hand.
func (s *Service) ValidateEntry(ctx context.Context, draft []ledger.ReportEntry, entry ledger.ReportEntry, month ledger.Month, year int) error {
	asOf, err := ledger.EffectiveDate(month, year)
	if err != nil {
		return err
	}
	if entry.HasNegativeAmount() {
		return fmt.Errorf("entry for member %s: %w", entry.MemberID, ledger.ErrNegativeAmount)
	}
	for _, staged := range draft {
		if staged.MemberID == entry.MemberID {
			return fmt.Errorf("member %s: %w", entry.MemberID, ledger.ErrDuplicateEntry)
		}
	}

	if err := s.checkBalances(ctx, entry, asOf); err != nil {
		return err
	}
	if entry.LoanDisbursed.IsPositive() {
		return s.checkCash(ctx, stagedDisbursements(draft), entry.LoanDisbursed)
	}
	return nil
}

// ValidateBatch checks a set of candidates together. The cash-on-hand check
// runs first over the whole batch and halts everything on failure; after
// that, each candidate passes or fails on its own. Accepted candidates
// count as staged for the duplicate check on later candidates.
func (s *Service) ValidateBatch(ctx context.Context, draft []ledger.ReportEntry, candidates []ledger.ReportEntry, month ledger.Month, year int) ([]ledger.ReportEntry, []EntryFailure, error) {
	asOf, err := ledger.EffectiveDate(month, year)
	if err != nil {
		return nil, nil, err
	}

	requested := stagedDisbursements(candidates)
	if requested.IsPositive() {
		if err := s.checkCash(ctx, stagedDisbursements(draft), requested); err != nil {
			return nil, nil, err
		}
	}

	staged := append([]ledger.ReportEntry(nil), draft...)
	var accepted []ledger.ReportEntry
	var failures []EntryFailure
	for _, candidate := range candidates {
		if err := s.validateMember(ctx, staged, candidate, asOf); err != nil {
			failures = append(failures, EntryFailure{Entry: candidate, Err: err})
			continue
		}
		accepted = append(accepted, candidate)
		staged = append(staged, candidate)
	}
	return accepted, failures, nil
}

// validateMember runs the per-member checks only; cash on hand is the
// batch's concern.
func (s *Service) validateMember(ctx context.Context, staged []ledger.ReportEntry, entry ledger.ReportEntry, asOf time.Time) error {
	if entry.HasNegativeAmount() {
		return fmt.Errorf("entry for member %s: %w", entry.MemberID, ledger.ErrNegativeAmount)
	}
	for _, e := range staged {
		if e.MemberID == entry.MemberID {
			return fmt.Errorf("member %s: %w", entry.MemberID, ledger.ErrDuplicateEntry)
		}
	}
	return s.checkBalances(ctx, entry, asOf)
}

// checkBalances verifies the withdrawal and repayment amounts against the
// member's replayed history as of the report's effective date.
func (s *Service) checkBalances(ctx context.Context, entry ledger.ReportEntry, asOf time.Time) error {
	if entry.SavingsWithdrawal.IsPositive() {
		available, err := s.NetSavingsAsOf(ctx, entry.MemberID, asOf)
		if err != nil {
			return err
		}
		if entry.SavingsWithdrawal.GreaterThan(available) {
			return &ledger.InsufficientSavingsError{
				MemberID:  entry.MemberID,
				Available: available,
				Requested: entry.SavingsWithdrawal,
				AsOf:      asOf,
			}
		}
	}

	if entry.LoanRepayment.IsPositive() {
		outstanding, err := s.NetLoanAsOf(ctx, entry.MemberID, asOf)
		if err != nil {
			return err
		}
		if !outstanding.IsPositive() {
			return fmt.Errorf("member %s: %w", entry.MemberID, ledger.ErrNoRepayableLoan)
		}
		if entry.LoanRepayment.GreaterThan(outstanding) {
			return &ledger.ExcessRepaymentError{
				MemberID:    entry.MemberID,
				Outstanding: outstanding,
				Requested:   entry.LoanRepayment,
				AsOf:        asOf,
			}
		}
	}
	return nil
}

// checkCash verifies that the society can fund the requested disbursement
// on top of what the draft already stages.
func (s *Service) checkCash(ctx context.Context, staged, requested decimal.Decimal) error {
	totals, err := s.store.TotalsSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("cash check: %w", err)
	}
	cash := totals.CashOnHand()
	if staged.Add(requested).GreaterThan(cash) {
		return &ledger.InsufficientCashError{
			CashOnHand: cash,
			Staged:     staged,
			Requested:  requested,
		}
	}
	return nil
}

// stagedDisbursements sums the loan disbursements already staged in a draft.
func stagedDisbursements(entries []ledger.ReportEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.LoanDisbursed)
	}
	return total
}
