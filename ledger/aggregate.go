package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// TRANSACTION AGGREGATOR - entries -> monthly totals
// =============================================================================

// Aggregate reduces a report's entries to its monthly totals. Pure: no I/O,
// no side effects, and aggregating the same entries twice yields identical
// totals. Zero-value amounts contribute nothing.
func Aggregate(entries []ReportEntry) MonthlyTotals {
	var t MonthlyTotals
	for _, e := range entries {
		t.SavingsDeposit = t.SavingsDeposit.Add(e.Savings)
		t.SavingsWithdrawal = t.SavingsWithdrawal.Add(e.SavingsWithdrawal)
		t.LoanDisbursed = t.LoanDisbursed.Add(e.LoanDisbursed)
		t.LoanRepaid = t.LoanRepaid.Add(e.LoanRepayment)
	}
	t.NetSavings = t.SavingsDeposit.Sub(t.SavingsWithdrawal)
	t.NetLoan = t.LoanDisbursed.Sub(t.LoanRepaid)
	return t
}

// NetImpact sums the net savings and net loan effect of entries belonging to
// members in the active set. Entries for deleted members contribute nothing:
// their historical effect was already backed out of the ledger when the
// member was removed, and counting them again would double-count.
func NetImpact(entries []ReportEntry, active map[MemberID]bool) (netSavings, netLoan decimal.Decimal) {
	var s, l decimal.Decimal
	for _, e := range entries {
		if !active[e.MemberID] {
			continue
		}
		s = s.Add(e.NetSavings())
		l = l.Add(e.NetLoan())
	}
	return s, l
}

// AllTimeImpact sums a single member's net savings and net loan across a set
// of reports, with no active-member filtering. This is the member-removal
// calculation: the one place the member's own entries must be counted.
func AllTimeImpact(reports []MonthlyReport, id MemberID) (netSavings, netLoan decimal.Decimal) {
	var s, l decimal.Decimal
	for _, r := range reports {
		for _, e := range r.Entries {
			if e.MemberID == id {
				s = s.Add(e.NetSavings())
				l = l.Add(e.NetLoan())
			}
		}
	}
	return s, l
}
