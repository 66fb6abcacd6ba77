/*
audit.go - Ledger conservation check

PURPOSE:
  The master invariant of the books: the cumulative totals must equal the
  sum of every active member's net effect across every stored report. This
  audit recomputes that sum and compares it to the stored totals. A
  mismatch is reported for manual reconciliation; the audit never writes.
*/
package society

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/khata/society-engine/ledger"
)

// LedgerAudit is the outcome of one conservation check.
type LedgerAudit struct {
	Stored     ledger.CumulativeTotals
	Computed   ledger.CumulativeTotals
	Reports    int
	Members    int
	Consistent bool
}

// AuditLedger recomputes the active-member net effect of all reports and
// compares it against the stored totals. On drift the audit result is
// returned alongside a consistency error so callers see both the verdict
// and the numbers.
func (s *Service) AuditLedger(ctx context.Context) (*LedgerAudit, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	stored, err := s.store.TotalsSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	active := ledger.ActiveMemberIDs(members)
	computed := ledger.CumulativeTotals{}
	for _, r := range reports {
		netSavings, netLoan := ledger.NetImpact(r.Entries, active)
		computed = computed.Apply(netSavings, netLoan)
	}

	audit := &LedgerAudit{
		Stored:   stored,
		Computed: computed,
		Reports:  len(reports),
		Members:  len(members),
		Consistent: stored.Savings.Equal(computed.Savings) &&
			stored.Loan.Equal(computed.Loan),
	}
	if !audit.Consistent {
		s.log.WithFields(logrus.Fields{
			"stored_savings":   stored.Savings.String(),
			"stored_loan":      stored.Loan.String(),
			"computed_savings": computed.Savings.String(),
			"computed_loan":    computed.Loan.String(),
		}).Error("ledger drift detected")
		return audit, &ledger.LedgerDriftError{
			StoredSavings:   stored.Savings,
			StoredLoan:      stored.Loan,
			ComputedSavings: computed.Savings,
			ComputedLoan:    computed.Loan,
		}
	}
	return audit, nil
}
