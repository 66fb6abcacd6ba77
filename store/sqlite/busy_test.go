package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata/society-engine/ledger"
)

// =============================================================================
// LOCK CONTENTION MAPPING
// =============================================================================

func TestIsBusyError(t *testing.T) {
	assert.True(t, isBusyError(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isBusyError(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.True(t, isBusyError(fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.True(t, isBusyError(errors.New("database is locked")))
	assert.False(t, isBusyError(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusyError(nil))
}

func TestWithTx_BusyMapsToTotalsConflict(t *testing.T) {
	// GIVEN: A transaction that hits a lock held by another writer
	// WHEN: The transaction fails with SQLITE_BUSY
	// THEN: The caller sees a retryable totals conflict

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	err = s.withTx(context.Background(), func(tx *sql.Tx) error {
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTotalsConflict)
	assert.True(t, ledger.IsRetryable(err))
}

func TestWithTx_OtherErrorsPassThrough(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	boom := errors.New("boom")
	err = s.withTx(context.Background(), func(tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ledger.IsRetryable(err))
}

// =============================================================================
// CORRUPT COLUMN HANDLING
// =============================================================================

func TestGetReport_CorruptEditHistorySurfaces(t *testing.T) {
	// GIVEN: A stored report whose edit history column holds invalid JSON
	// WHEN: Loading the report
	// THEN: The corruption is reported instead of silently dropped

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	report := ledger.MonthlyReport{
		Month: "January",
		Year:  2024,
		Entries: []ledger.ReportEntry{
			{MemberID: "m1", MemberName: "Rahim", Savings: decimal.RequireFromString("100")},
		},
	}
	report.MonthlyTotals = ledger.Aggregate(report.Entries)
	saved, err := s.SaveReportWithTotals(ctx, report,
		decimal.RequireFromString("100"), decimal.Zero)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx,
		`UPDATE reports SET edit_history_json = 'not-json' WHERE id = ?`, string(saved.ID))
	require.NoError(t, err)

	_, err = s.GetReport(ctx, saved.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt edit history")
}
