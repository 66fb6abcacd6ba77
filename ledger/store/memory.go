// Package store provides an in-memory ledger.Store implementation
// for testing and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khata/society-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store. A single mutex serializes every operation,
// which makes each coupled write trivially atomic; the snapshot helpers keep
// the rollback-on-error semantics the production store gets from sql.Tx.
type Memory struct {
	mu      sync.RWMutex
	members map[ledger.MemberID]ledger.Member
	reports map[ledger.ReportID]ledger.MonthlyReport
	totals  *ledger.CumulativeTotals // nil until first access or after reset

	// Test hook: when non-nil, called between read and write inside
	// UpdateTotals to simulate contention.
	BeforeTotalsWrite func()
}

func NewMemory() *Memory {
	return &Memory{
		members: make(map[ledger.MemberID]ledger.Member),
		reports: make(map[ledger.ReportID]ledger.MonthlyReport),
	}
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (m *Memory) GetMember(_ context.Context, id ledger.MemberID) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, ledger.ErrMemberNotFound
	}
	return &member, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]ledger.Member, 0, len(m.members))
	for _, member := range m.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].NameLowercase < members[j].NameLowercase
	})
	return members, nil
}

func (m *Memory) AddMember(_ context.Context, name, nameLowercase string) (*ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member := ledger.Member{
		ID:            ledger.MemberID(uuid.New().String()),
		Name:          name,
		NameLowercase: nameLowercase,
		CreatedAt:     time.Now().UTC(),
	}
	m.members[member.ID] = member
	return &member, nil
}

func (m *Memory) RemoveMemberWithTotals(_ context.Context, id ledger.MemberID, netSavings, netLoan decimal.Decimal) (ledger.CumulativeTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[id]; !ok {
		return ledger.CumulativeTotals{}, ledger.ErrMemberNotFound
	}
	delete(m.members, id)
	return m.applyLocked(netSavings, netLoan), nil
}

func (m *Memory) DeleteAllMembers(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = make(map[ledger.MemberID]ledger.Member)
	return nil
}

// =============================================================================
// REPORT STORE
// =============================================================================

func (m *Memory) GetReport(_ context.Context, id ledger.ReportID) (*ledger.MonthlyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.reports[id]
	if !ok {
		return nil, ledger.ErrReportNotFound
	}
	copied := cloneReport(report)
	return &copied, nil
}

func (m *Memory) ListReports(_ context.Context) ([]ledger.MonthlyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := m.listLocked()
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

func (m *Memory) ListReportsByYear(_ context.Context, year int) ([]ledger.MonthlyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reports []ledger.MonthlyReport
	for _, r := range m.reports {
		if r.Year == year {
			reports = append(reports, cloneReport(r))
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})
	return reports, nil
}

func (m *Memory) FindReportByMonthYear(_ context.Context, month ledger.Month, year int) (ledger.ReportID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByMonthYearLocked(month, year), nil
}

func (m *Memory) SaveReportWithTotals(_ context.Context, report ledger.MonthlyReport, netSavings, netLoan decimal.Decimal) (*ledger.MonthlyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The uniqueness constraint lives here so a concurrent create cannot
	// slip between the service's check and the write.
	if existing := m.findByMonthYearLocked(report.Month, report.Year); existing != "" {
		return nil, &ledger.DuplicateReportError{Month: report.Month, Year: report.Year, ExistingID: existing}
	}

	report.ID = ledger.ReportID(uuid.New().String())
	report.CreatedAt = time.Now().UTC()
	report.CumulativeTotalsAtEndOfReport = m.applyLocked(netSavings, netLoan)
	m.reports[report.ID] = cloneReport(report)

	saved := cloneReport(report)
	return &saved, nil
}

func (m *Memory) UpdateReportWithTotals(_ context.Context, id ledger.ReportID, entries []ledger.ReportEntry, totals ledger.MonthlyTotals, netSavingsDelta, netLoanDelta decimal.Decimal) (*ledger.MonthlyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report, ok := m.reports[id]
	if !ok {
		return nil, ledger.ErrReportNotFound
	}

	now := time.Now().UTC()
	report = cloneReport(report)
	report.Entries = append([]ledger.ReportEntry(nil), entries...)
	report.MonthlyTotals = totals
	report.CumulativeTotalsAtEndOfReport = m.applyLocked(netSavingsDelta, netLoanDelta)
	report.UpdatedAt = &now
	report.EditHistory = append(report.EditHistory, ledger.EditRecord{Timestamp: now, Action: "edit"})
	m.reports[id] = cloneReport(report)

	return &report, nil
}

func (m *Memory) DeleteReportWithTotals(_ context.Context, id ledger.ReportID, netSavings, netLoan decimal.Decimal) (ledger.CumulativeTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[id]; !ok {
		return ledger.CumulativeTotals{}, ledger.ErrReportNotFound
	}
	// Totals first, then the record - matching the production ordering.
	snapshot := m.applyLocked(netSavings, netLoan)
	delete(m.reports, id)
	return snapshot, nil
}

func (m *Memory) DeleteAllReports(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = make(map[ledger.ReportID]ledger.MonthlyReport)
	return nil
}

// =============================================================================
// TOTALS STORE
// =============================================================================

func (m *Memory) TotalsSnapshot(_ context.Context) (ledger.CumulativeTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalsLocked(), nil
}

func (m *Memory) UpdateTotals(_ context.Context, fn func(ledger.CumulativeTotals) ledger.CumulativeTotals) (ledger.CumulativeTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.totalsLocked()
	if m.BeforeTotalsWrite != nil {
		m.BeforeTotalsWrite()
	}
	next := fn(current)
	next.LastUpdated = time.Now().UTC()
	m.totals = &next
	return next, nil
}

func (m *Memory) DeleteTotals(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals = nil
	return nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (m *Memory) totalsLocked() ledger.CumulativeTotals {
	if m.totals == nil {
		initial := ledger.CumulativeTotals{LastUpdated: time.Now().UTC()}
		m.totals = &initial
	}
	return *m.totals
}

func (m *Memory) applyLocked(netSavings, netLoan decimal.Decimal) ledger.CumulativeTotals {
	next := m.totalsLocked().Apply(netSavings, netLoan)
	next.LastUpdated = time.Now().UTC()
	m.totals = &next
	return next
}

func (m *Memory) findByMonthYearLocked(month ledger.Month, year int) ledger.ReportID {
	for id, r := range m.reports {
		if r.Month == month && r.Year == year {
			return id
		}
	}
	return ""
}

func (m *Memory) listLocked() []ledger.MonthlyReport {
	reports := make([]ledger.MonthlyReport, 0, len(m.reports))
	for _, r := range m.reports {
		reports = append(reports, cloneReport(r))
	}
	return reports
}

func cloneReport(r ledger.MonthlyReport) ledger.MonthlyReport {
	copied := r
	copied.Entries = append([]ledger.ReportEntry(nil), r.Entries...)
	copied.EditHistory = append([]ledger.EditRecord(nil), r.EditHistory...)
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		copied.UpdatedAt = &t
	}
	return copied
}
