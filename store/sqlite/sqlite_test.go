package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata/society-engine/ledger"
	"github.com/khata/society-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func draftReport(month ledger.Month, year int, entries ...ledger.ReportEntry) ledger.MonthlyReport {
	return ledger.MonthlyReport{
		AssociationName: "Test Samity",
		Month:           month,
		Year:            year,
		Entries:         entries,
		MonthlyTotals:   ledger.Aggregate(entries),
	}
}

func savingsEntry(memberID, amount string) ledger.ReportEntry {
	return ledger.ReportEntry{
		MemberID:   ledger.MemberID(memberID),
		MemberName: memberID,
		Savings:    dec(amount),
	}
}

// =============================================================================
// MIGRATION AND ROUND TRIPS
// =============================================================================

func TestSQLite_MigrateAndReportRoundTrip(t *testing.T) {
	// GIVEN: A fresh database
	// WHEN: Saving a report and loading it back
	// THEN: Entries, totals, and the cumulative snapshot survive exactly

	s := newTestStore(t)
	ctx := context.Background()

	entries := []ledger.ReportEntry{
		savingsEntry("alice", "500.25"),
		{MemberID: "bob", MemberName: "bob", LoanDisbursed: dec("1000"), LoanRepayment: dec("0")},
	}
	saved, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, entries...), dec("500.25"), dec("1000"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	loaded, err := s.GetReport(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Month("January"), loaded.Month)
	assert.Equal(t, 2024, loaded.Year)
	assert.Equal(t, "Test Samity", loaded.AssociationName)
	require.Len(t, loaded.Entries, 2)
	assert.True(t, loaded.Entries[0].Savings.Equal(dec("500.25")))
	assert.True(t, loaded.MonthlyTotals.LoanDisbursed.Equal(dec("1000")))
	assert.True(t, loaded.CumulativeTotalsAtEndOfReport.Savings.Equal(dec("500.25")))
	assert.True(t, loaded.CumulativeTotalsAtEndOfReport.Loan.Equal(dec("1000")))
}

func TestSQLite_MemberRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	member, err := s.AddMember(ctx, "Alice", "alice")
	require.NoError(t, err)

	loaded, err := s.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", loaded.Name)
	assert.Equal(t, "alice", loaded.NameLowercase)
	assert.WithinDuration(t, time.Now(), loaded.CreatedAt, time.Minute)
}

func TestSQLite_AddMember_DuplicateNormalizedNameRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddMember(ctx, "Alice", "alice")
	require.NoError(t, err)

	_, err = s.AddMember(ctx, "ALICE", "alice")
	assert.ErrorIs(t, err, ledger.ErrDuplicateMember)
}

// =============================================================================
// UNIQUE (MONTH, YEAR) AND TRANSACTION COUPLING
// =============================================================================

func TestSQLite_DuplicateMonthYear_RollsBackTotals(t *testing.T) {
	// GIVEN: A January 2024 report already saved
	// WHEN: A second January 2024 save hits the UNIQUE constraint
	// THEN: The whole transaction rolls back; the totals show only the
	//       first report's effect

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "500")), dec("500"), decimal.Zero)
	require.NoError(t, err)

	_, err = s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("bob", "100")), dec("100"), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrDuplicateReport)

	totals, err := s.TotalsSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Savings.Equal(dec("500")))
}

func TestSQLite_SameMonthDifferentYear_Allowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	require.NoError(t, err)

	_, err = s.SaveReportWithTotals(ctx, draftReport("January", 2025, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	assert.NoError(t, err)
}

func TestSQLite_DeleteReportWithTotals_OneTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "500")), dec("500"), decimal.Zero)
	require.NoError(t, err)

	totals, err := s.DeleteReportWithTotals(ctx, saved.ID, dec("-500"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, totals.Savings.IsZero())

	_, err = s.GetReport(ctx, saved.ID)
	assert.ErrorIs(t, err, ledger.ErrReportNotFound)
}

func TestSQLite_DeleteMissingReport_TotalsUntouched(t *testing.T) {
	// The totals adjustment and the delete share one transaction, so a
	// missing report must roll back the adjustment too.

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "500")), dec("500"), decimal.Zero)
	require.NoError(t, err)

	_, err = s.DeleteReportWithTotals(ctx, "no-such-id", dec("-500"), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrReportNotFound)

	totals, err := s.TotalsSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Savings.Equal(dec("500")))
}

func TestSQLite_UpdateReportWithTotals_PersistsHistoryAndDelta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "500")), dec("500"), decimal.Zero)
	require.NoError(t, err)

	newEntries := []ledger.ReportEntry{savingsEntry("alice", "300")}
	updated, err := s.UpdateReportWithTotals(ctx, saved.ID, newEntries, ledger.Aggregate(newEntries), dec("-200"), decimal.Zero)
	require.NoError(t, err)
	require.NotNil(t, updated.UpdatedAt)
	require.Len(t, updated.EditHistory, 1)

	loaded, err := s.GetReport(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Entries[0].Savings.Equal(dec("300")))
	require.NotNil(t, loaded.UpdatedAt)
	require.Len(t, loaded.EditHistory, 1)
	assert.Equal(t, "edit", loaded.EditHistory[0].Action)

	totals, err := s.TotalsSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Savings.Equal(dec("300")))
}

func TestSQLite_RemoveMemberWithTotals_OneTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	member, err := s.AddMember(ctx, "Alice", "alice")
	require.NoError(t, err)
	_, err = s.UpdateTotals(ctx, func(t ledger.CumulativeTotals) ledger.CumulativeTotals {
		return t.Apply(dec("500"), decimal.Zero)
	})
	require.NoError(t, err)

	totals, err := s.RemoveMemberWithTotals(ctx, member.ID, dec("-500"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, totals.Savings.IsZero())

	_, err = s.GetMember(ctx, member.ID)
	assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
}

// =============================================================================
// ORDERING AND LOOKUPS
// =============================================================================

func TestSQLite_FindReportByMonthYear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveReportWithTotals(ctx, draftReport("March", 2024, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	require.NoError(t, err)

	id, err := s.FindReportByMonthYear(ctx, "March", 2024)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, id)

	missing, err := s.FindReportByMonthYear(ctx, "April", 2024)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSQLite_ListReportsByYear_FiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveReportWithTotals(ctx, draftReport("January", 2024, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	require.NoError(t, err)
	_, err = s.SaveReportWithTotals(ctx, draftReport("February", 2024, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	require.NoError(t, err)
	_, err = s.SaveReportWithTotals(ctx, draftReport("January", 2023, savingsEntry("alice", "1")), dec("1"), decimal.Zero)
	require.NoError(t, err)

	reports, err := s.ListReportsByYear(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, 2024, r.Year)
	}
	assert.True(t, !reports[1].CreatedAt.Before(reports[0].CreatedAt))
}

// =============================================================================
// TOTALS LIFECYCLE
// =============================================================================

func TestSQLite_TotalsInitializeOnFirstRead(t *testing.T) {
	s := newTestStore(t)

	totals, err := s.TotalsSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, totals.Savings.IsZero())
	assert.True(t, totals.Loan.IsZero())
}

func TestSQLite_DeleteTotals_ReinitializesOnNextRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateTotals(ctx, func(t ledger.CumulativeTotals) ledger.CumulativeTotals {
		return t.Apply(dec("100"), dec("40"))
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteTotals(ctx))

	totals, err := s.TotalsSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Savings.IsZero())
	assert.True(t, totals.Loan.IsZero())
}
