/*
annual.go - Read-side summaries derived from stored reports

PURPOSE:
  Year summaries, per-member statements, and the yearly member
  distribution. All of it is derived by reading reports; nothing here
  writes. Start-of-year and end-of-year positions come from the stored
  cumulative snapshots, never from a live recomputation, so a summary
  always matches what the books said at the time.
*/
package society

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khata/society-engine/ledger"
)

// =============================================================================
// ANNUAL SUMMARY
// =============================================================================

// AnnualSummary is the society's position over one calendar year.
type AnnualSummary struct {
	Year              int
	StartOfYearTotals ledger.CumulativeTotals
	EndOfYearTotals   ledger.CumulativeTotals
	Months            []MonthRow
	YearTotals        ledger.MonthlyTotals
	MemberSummaries   []MemberYearSummary
	Empty             bool // no reports exist for the year
}

// MonthRow is one report's contribution to the annual summary.
type MonthRow struct {
	ReportID ledger.ReportID
	Month    ledger.Month
	Totals   ledger.MonthlyTotals
	Snapshot ledger.CumulativeTotals
}

// MemberYearSummary is a member's all-time position through year end.
type MemberYearSummary struct {
	MemberID   ledger.MemberID
	Name       string
	NetSavings decimal.Decimal
	NetLoan    decimal.Decimal
}

// AnnualSummary builds the year's summary. The start-of-year position is the
// cumulative snapshot of the latest report dated before January 1; member
// positions are replayed through December 31.
func (s *Service) AnnualSummary(ctx context.Context, year int) (*AnnualSummary, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("annual summary: %w", err)
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("annual summary: %w", err)
	}

	summary := &AnnualSummary{
		Year:              year,
		StartOfYearTotals: latestSnapshotBefore(reports, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
	}

	var inYear []ledger.MonthlyReport
	for _, r := range reports {
		if r.Year == year && ledger.MonthIndex(r.Month) >= 0 {
			inYear = append(inYear, r)
		}
	}
	sort.Slice(inYear, func(i, j int) bool {
		return ledger.MonthIndex(inYear[i].Month) < ledger.MonthIndex(inYear[j].Month)
	})

	if len(inYear) == 0 {
		summary.Empty = true
		summary.EndOfYearTotals = summary.StartOfYearTotals
		return summary, nil
	}

	for _, r := range inYear {
		summary.Months = append(summary.Months, MonthRow{
			ReportID: r.ID,
			Month:    r.Month,
			Totals:   r.MonthlyTotals,
			Snapshot: r.CumulativeTotalsAtEndOfReport,
		})
		summary.YearTotals = addMonthlyTotals(summary.YearTotals, r.MonthlyTotals)
	}
	summary.EndOfYearTotals = inYear[len(inYear)-1].CumulativeTotalsAtEndOfReport

	yearEnd := ledger.EndOfYear(year)
	for _, m := range members {
		savings := ledger.ReplayNetSavings(reports, m.ID, yearEnd)
		loan := ledger.ReplayNetLoan(reports, m.ID, yearEnd)
		s.warnSkipped(savings.Skipped, m.ID)
		summary.MemberSummaries = append(summary.MemberSummaries, MemberYearSummary{
			MemberID:   m.ID,
			Name:       m.Name,
			NetSavings: savings.Net,
			NetLoan:    loan.Net,
		})
	}
	return summary, nil
}

// =============================================================================
// MEMBER STATEMENT
// =============================================================================

// MemberStatement is a member's transaction history in effective-date order
// with running balances.
type MemberStatement struct {
	MemberID   ledger.MemberID
	Name       string
	Lines      []StatementLine
	NetSavings decimal.Decimal
	NetLoan    decimal.Decimal
}

// StatementLine is one report's entry for the member plus the balances
// after it.
type StatementLine struct {
	ReportID          ledger.ReportID
	Month             ledger.Month
	Year              int
	Savings           decimal.Decimal
	SavingsWithdrawal decimal.Decimal
	LoanDisbursed     decimal.Decimal
	LoanRepayment     decimal.Decimal
	RunningSavings    decimal.Decimal
	RunningLoan       decimal.Decimal
}

// MemberStatement builds the chronological statement for one member.
func (s *Service) MemberStatement(ctx context.Context, id ledger.MemberID) (*MemberStatement, error) {
	member, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("member statement: %w", err)
	}

	statement := &MemberStatement{MemberID: id, Name: member.Name}
	savings, loan := decimal.Zero, decimal.Zero
	for _, r := range ledger.SortByEffectiveDate(reports) {
		entry, ok := r.EntryFor(id)
		if !ok {
			continue
		}
		savings = savings.Add(entry.NetSavings())
		loan = loan.Add(entry.NetLoan())
		statement.Lines = append(statement.Lines, StatementLine{
			ReportID:          r.ID,
			Month:             r.Month,
			Year:              r.Year,
			Savings:           entry.Savings,
			SavingsWithdrawal: entry.SavingsWithdrawal,
			LoanDisbursed:     entry.LoanDisbursed,
			LoanRepayment:     entry.LoanRepayment,
			RunningSavings:    savings,
			RunningLoan:       loan,
		})
	}
	statement.NetSavings = savings
	statement.NetLoan = loan
	return statement, nil
}

// =============================================================================
// MEMBER DISTRIBUTION
// =============================================================================

// MemberDistribution breaks a year's deposits and disbursements down per
// active member.
type MemberDistribution struct {
	Year               int
	Rows               []DistributionRow
	TotalSavings       decimal.Decimal
	TotalLoanDisbursed decimal.Decimal
}

type DistributionRow struct {
	MemberID      ledger.MemberID
	Name          string
	Savings       decimal.Decimal
	LoanDisbursed decimal.Decimal
}

// MemberDistribution sums each active member's deposits and loan
// disbursements across the year's reports. Entries of removed members stay
// out of the rows and the totals.
func (s *Service) MemberDistribution(ctx context.Context, year int) (*MemberDistribution, error) {
	reports, err := s.store.ListReportsByYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("member distribution: %w", err)
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("member distribution: %w", err)
	}

	type bucket struct {
		savings decimal.Decimal
		loan    decimal.Decimal
	}
	byMember := make(map[ledger.MemberID]bucket, len(members))
	active := ledger.ActiveMemberIDs(members)
	for _, r := range reports {
		for _, e := range r.Entries {
			if !active[e.MemberID] {
				continue
			}
			b := byMember[e.MemberID]
			b.savings = b.savings.Add(e.Savings)
			b.loan = b.loan.Add(e.LoanDisbursed)
			byMember[e.MemberID] = b
		}
	}

	dist := &MemberDistribution{Year: year}
	for _, m := range members {
		b, ok := byMember[m.ID]
		if !ok {
			continue
		}
		dist.Rows = append(dist.Rows, DistributionRow{
			MemberID:      m.ID,
			Name:          m.Name,
			Savings:       b.savings,
			LoanDisbursed: b.loan,
		})
		dist.TotalSavings = dist.TotalSavings.Add(b.savings)
		dist.TotalLoanDisbursed = dist.TotalLoanDisbursed.Add(b.loan)
	}
	return dist, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// latestSnapshotBefore finds the cumulative snapshot of the latest report
// dated strictly before cutoff. Zero totals when no such report exists.
func latestSnapshotBefore(reports []ledger.MonthlyReport, cutoff time.Time) ledger.CumulativeTotals {
	var (
		found  bool
		bestAt time.Time
		best   ledger.CumulativeTotals
	)
	for _, r := range reports {
		at, err := ledger.EffectiveDate(r.Month, r.Year)
		if err != nil || !at.Before(cutoff) {
			continue
		}
		if !found || at.After(bestAt) {
			found, bestAt, best = true, at, r.CumulativeTotalsAtEndOfReport
		}
	}
	return best
}

func addMonthlyTotals(a, b ledger.MonthlyTotals) ledger.MonthlyTotals {
	return ledger.MonthlyTotals{
		SavingsDeposit:    a.SavingsDeposit.Add(b.SavingsDeposit),
		SavingsWithdrawal: a.SavingsWithdrawal.Add(b.SavingsWithdrawal),
		NetSavings:        a.NetSavings.Add(b.NetSavings),
		LoanDisbursed:     a.LoanDisbursed.Add(b.LoanDisbursed),
		LoanRepaid:        a.LoanRepaid.Add(b.LoanRepaid),
		NetLoan:           a.NetLoan.Add(b.NetLoan),
	}
}
