/*
service.go - Lifecycle orchestration for members, reports, and the ledger

PURPOSE:
  The Service is the single writer of the society's books. Every mutation
  goes through here so that the cumulative totals and the record that
  justifies them always change together.

KEY RULES:
  1. A report's ledger effect counts only entries of members who are active
     at the time of the mutation. A removed member's history was already
     settled when the member was removed; counting it again would double
     book the same money.
  2. Report updates apply a delta (new effect minus original effect), never
     a blind re-add.
  3. Report deletion recalculates the totals first, then removes the record,
     inside one store transaction.
  4. Member removal settles the member's ALL-TIME net effect, with no active
     filter: the member being removed is the member whose history is being
     settled.

SEE ALSO:
  - ledger/store.go: the coupled ...WithTotals operations this relies on
  - validate.go: entry-time balance checks
  - audit.go: the conservation check over everything this file writes
*/
package society

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/khata/society-engine/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates member and report lifecycles over a ledger.Store.
// The store is injected; the service owns no storage state of its own.
type Service struct {
	store ledger.Store
	log   *logrus.Logger
}

func NewService(store ledger.Store, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{store: store, log: log}
}

// =============================================================================
// MEMBERS
// =============================================================================

// AddMember registers a new member. Names are trimmed and duplicates are
// rejected case-insensitively.
func (s *Service) AddMember(ctx context.Context, name string) (*ledger.Member, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ledger.ErrEmptyMemberName
	}
	lower := strings.ToLower(trimmed)

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	for _, m := range members {
		if m.NameLowercase == lower {
			return nil, fmt.Errorf("add member %q: %w", trimmed, ledger.ErrDuplicateMember)
		}
	}

	member, err := s.store.AddMember(ctx, trimmed, lower)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	s.log.WithFields(logrus.Fields{"member_id": member.ID, "name": member.Name}).Info("member added")
	return member, nil
}

// RemoveMember deletes a member and settles their all-time net effect out of
// the cumulative totals in the same store transaction. The all-time sums use
// NO active-member filter: this is the one moment the removed member's own
// history is counted, and afterwards it never is again.
func (s *Service) RemoveMember(ctx context.Context, id ledger.MemberID) (ledger.CumulativeTotals, error) {
	if _, err := s.store.GetMember(ctx, id); err != nil {
		return ledger.CumulativeTotals{}, err
	}

	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return ledger.CumulativeTotals{}, fmt.Errorf("remove member: %w", err)
	}
	netSavings, netLoan := ledger.AllTimeImpact(reports, id)

	totals, err := s.store.RemoveMemberWithTotals(ctx, id, netSavings.Neg(), netLoan.Neg())
	if err != nil {
		return ledger.CumulativeTotals{}, fmt.Errorf("remove member: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"member_id":   id,
		"net_savings": netSavings.String(),
		"net_loan":    netLoan.String(),
	}).Info("member removed, totals settled")
	return totals, nil
}

// Member loads one member by id.
func (s *Service) Member(ctx context.Context, id ledger.MemberID) (*ledger.Member, error) {
	return s.store.GetMember(ctx, id)
}

// Members lists all members ordered by normalized name.
func (s *Service) Members(ctx context.Context) ([]ledger.Member, error) {
	return s.store.ListMembers(ctx)
}

// MemberRefs resolves a report's entries against the current member list,
// marking entries whose member has been deleted.
func (s *Service) MemberRefs(ctx context.Context, entries []ledger.ReportEntry) ([]ledger.MemberRef, error) {
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.ResolveMembers(entries, members), nil
}

// =============================================================================
// REPORTS
// =============================================================================

// CreateMonthlyReport validates and persists a new monthly report, applying
// its active-member net effect to the cumulative totals in one transaction.
func (s *Service) CreateMonthlyReport(ctx context.Context, entries []ledger.ReportEntry, month ledger.Month, year int, associationName string) (*ledger.MonthlyReport, error) {
	if _, err := ledger.EffectiveDate(month, year); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledger.ErrEmptyEntries
	}
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	// Pre-check for a friendly error. The store enforces the same
	// uniqueness again at write time, so a concurrent create still loses.
	if existing, err := s.store.FindReportByMonthYear(ctx, month, year); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	} else if existing != "" {
		return nil, &ledger.DuplicateReportError{Month: month, Year: year, ExistingID: existing}
	}

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	netSavings, netLoan := ledger.NetImpact(entries, ledger.ActiveMemberIDs(members))

	report := ledger.MonthlyReport{
		AssociationName: associationName,
		Month:           month,
		Year:            year,
		Entries:         entries,
		MonthlyTotals:   ledger.Aggregate(entries),
	}
	saved, err := s.store.SaveReportWithTotals(ctx, report, netSavings, netLoan)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"report_id": saved.ID,
		"month":     month,
		"year":      year,
		"entries":   len(entries),
	}).Info("monthly report created")
	return saved, nil
}

// UpdateMonthlyReport replaces a report's entries. The totals adjustment is
// the DELTA between the new and original active-member effects, so removed
// members' original entries contribute nothing to either side. An empty
// entry list is legal and reduces the report's effect to zero.
func (s *Service) UpdateMonthlyReport(ctx context.Context, id ledger.ReportID, entries []ledger.ReportEntry) (*ledger.MonthlyReport, error) {
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	original, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	active := ledger.ActiveMemberIDs(members)

	newSavings, newLoan := ledger.NetImpact(entries, active)
	origSavings, origLoan := ledger.NetImpact(original.Entries, active)

	updated, err := s.store.UpdateReportWithTotals(ctx, id, entries, ledger.Aggregate(entries),
		newSavings.Sub(origSavings), newLoan.Sub(origLoan))
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"report_id":     id,
		"savings_delta": newSavings.Sub(origSavings).String(),
		"loan_delta":    newLoan.Sub(origLoan).String(),
	}).Info("monthly report updated")
	return updated, nil
}

// DeleteMonthlyReport removes a report after subtracting its active-member
// net effect from the totals. Both happen in one store transaction, totals
// first, so a failure can never leave the report gone but its effect in
// the ledger.
func (s *Service) DeleteMonthlyReport(ctx context.Context, id ledger.ReportID) (ledger.CumulativeTotals, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return ledger.CumulativeTotals{}, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return ledger.CumulativeTotals{}, fmt.Errorf("delete report: %w", err)
	}
	netSavings, netLoan := ledger.NetImpact(report.Entries, ledger.ActiveMemberIDs(members))

	totals, err := s.store.DeleteReportWithTotals(ctx, id, netSavings.Neg(), netLoan.Neg())
	if err != nil {
		return ledger.CumulativeTotals{}, err
	}
	s.log.WithFields(logrus.Fields{
		"report_id":   id,
		"net_savings": netSavings.String(),
		"net_loan":    netLoan.String(),
	}).Info("monthly report deleted, totals recalculated")
	return totals, nil
}

// Report loads one report by id.
func (s *Service) Report(ctx context.Context, id ledger.ReportID) (*ledger.MonthlyReport, error) {
	return s.store.GetReport(ctx, id)
}

// Reports lists all reports, newest first by creation time.
func (s *Service) Reports(ctx context.Context) ([]ledger.MonthlyReport, error) {
	return s.store.ListReports(ctx)
}

// ReportsByYear lists a year's reports in creation order.
func (s *Service) ReportsByYear(ctx context.Context, year int) ([]ledger.MonthlyReport, error) {
	return s.store.ListReportsByYear(ctx, year)
}

// =============================================================================
// BALANCES
// =============================================================================

// NetSavingsAsOf replays the member's savings across all reports whose
// effective month/year date falls on or before asOf. Save order and
// createdAt play no part.
func (s *Service) NetSavingsAsOf(ctx context.Context, id ledger.MemberID, asOf time.Time) (decimal.Decimal, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("net savings as of: %w", err)
	}
	result := ledger.ReplayNetSavings(reports, id, asOf)
	s.warnSkipped(result.Skipped, id)
	return result.Net, nil
}

// NetLoanAsOf replays the member's outstanding loan as of the given date.
func (s *Service) NetLoanAsOf(ctx context.Context, id ledger.MemberID, asOf time.Time) (decimal.Decimal, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("net loan as of: %w", err)
	}
	result := ledger.ReplayNetLoan(reports, id, asOf)
	s.warnSkipped(result.Skipped, id)
	return result.Net, nil
}

func (s *Service) warnSkipped(skipped []ledger.ReportID, id ledger.MemberID) {
	for _, rid := range skipped {
		s.log.WithFields(logrus.Fields{
			"report_id": rid,
			"member_id": id,
		}).Warn("report skipped during replay: month label not on the timeline")
	}
}

// =============================================================================
// TOTALS AND ADMIN
// =============================================================================

// Totals returns the current cumulative totals, initializing {0, 0} on
// first read.
func (s *Service) Totals(ctx context.Context) (ledger.CumulativeTotals, error) {
	return s.store.TotalsSnapshot(ctx)
}

// ResetAllData wipes members, reports, and the totals record.
func (s *Service) ResetAllData(ctx context.Context) error {
	if err := s.store.DeleteAllReports(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := s.store.DeleteAllMembers(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := s.store.DeleteTotals(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.log.Warn("all data reset")
	return nil
}

// =============================================================================
// ENTRY CHECKS SHARED BY CREATE AND UPDATE
// =============================================================================

// checkEntries enforces the structural invariants every persisted entry set
// must satisfy: non-negative amounts and at most one entry per member.
func checkEntries(entries []ledger.ReportEntry) error {
	seen := make(map[ledger.MemberID]bool, len(entries))
	for _, e := range entries {
		if e.HasNegativeAmount() {
			return fmt.Errorf("entry for member %s: %w", e.MemberID, ledger.ErrNegativeAmount)
		}
		if seen[e.MemberID] {
			return fmt.Errorf("member %s: %w", e.MemberID, ledger.ErrDuplicateEntry)
		}
		seen[e.MemberID] = true
	}
	return nil
}
