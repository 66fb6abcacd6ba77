/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Production persistence for members, monthly reports, and the cumulative
  totals record. Every coupled operation (report save/update/delete, member
  removal) runs inside one database transaction so the record and the
  totals can never diverge.

KEY TABLES:
  members:  account holders, hard-deleted on removal
  reports:  one row per monthly report, entries as JSON,
            UNIQUE(month, year) enforces one report per month
  totals:   the single cumulative {savings, loan} row, id fixed to 1

AMOUNTS:
  All money columns store exact decimal strings, never REAL. Parsing back
  through shopspring/decimal loses nothing.

CONCURRENCY:
  Uses sync.Mutex around mutations plus SQLite transactions. WAL mode keeps
  readers unblocked while a writer commits.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/khata/society-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_lowercase TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		association_name TEXT NOT NULL DEFAULT '',
		month TEXT NOT NULL,
		year INTEGER NOT NULL,
		entries_json TEXT NOT NULL,
		savings_deposit TEXT NOT NULL,
		savings_withdrawal TEXT NOT NULL,
		net_savings TEXT NOT NULL,
		loan_disbursed TEXT NOT NULL,
		loan_repaid TEXT NOT NULL,
		net_loan TEXT NOT NULL,
		snapshot_savings TEXT NOT NULL,
		snapshot_loan TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT,
		edit_history_json TEXT,
		UNIQUE(month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_reports_year ON reports(year);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);

	-- The single cumulative totals record. id is pinned to 1.
	CREATE TABLE IF NOT EXISTS totals (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		savings TEXT NOT NULL,
		loan TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (s *Store) GetMember(ctx context.Context, id ledger.MemberID) (*ledger.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, name_lowercase, created_at FROM members WHERE id = ?`, id)
	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return member, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]ledger.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, name_lowercase, created_at FROM members ORDER BY name_lowercase ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, name, nameLowercase string) (*ledger.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	member := ledger.Member{
		ID:            ledger.MemberID(uuid.New().String()),
		Name:          name,
		NameLowercase: nameLowercase,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, name_lowercase, created_at) VALUES (?, ?, ?, ?)`,
		member.ID, member.Name, member.NameLowercase, member.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ledger.ErrDuplicateMember
		}
		return nil, fmt.Errorf("failed to insert member: %w", err)
	}
	return &member, nil
}

func (s *Store) RemoveMemberWithTotals(ctx context.Context, id ledger.MemberID, netSavings, netLoan decimal.Decimal) (ledger.CumulativeTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals ledger.CumulativeTotals
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrMemberNotFound
		}
		totals, err = s.applyTotalsTx(ctx, tx, netSavings, netLoan)
		return err
	})
	return totals, err
}

func (s *Store) DeleteAllMembers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM members`)
	return err
}

// =============================================================================
// REPORT STORE
// =============================================================================

const reportColumns = `id, association_name, month, year, entries_json,
	savings_deposit, savings_withdrawal, net_savings,
	loan_disbursed, loan_repaid, net_loan,
	snapshot_savings, snapshot_loan, created_at, updated_at, edit_history_json`

func (s *Store) GetReport(ctx context.Context, id ledger.ReportID) (*ledger.MonthlyReport, error) {
	reports, err := s.queryReports(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ledger.ErrReportNotFound
	}
	return &reports[0], nil
}

func (s *Store) ListReports(ctx context.Context) ([]ledger.MonthlyReport, error) {
	return s.queryReports(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC`)
}

func (s *Store) ListReportsByYear(ctx context.Context, year int) ([]ledger.MonthlyReport, error) {
	return s.queryReports(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE year = ? ORDER BY created_at ASC`, year)
}

func (s *Store) FindReportByMonthYear(ctx context.Context, month ledger.Month, year int) (ledger.ReportID, error) {
	var id ledger.ReportID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM reports WHERE month = ? AND year = ?`, month, year).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find report: %w", err)
	}
	return id, nil
}

func (s *Store) SaveReportWithTotals(ctx context.Context, report ledger.MonthlyReport, netSavings, netLoan decimal.Decimal) (*ledger.MonthlyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report.ID = ledger.ReportID(uuid.New().String())
	report.CreatedAt = time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		totals, err := s.applyTotalsTx(ctx, tx, netSavings, netLoan)
		if err != nil {
			return err
		}
		report.CumulativeTotalsAtEndOfReport = totals

		entriesJSON, err := json.Marshal(report.Entries)
		if err != nil {
			return fmt.Errorf("failed to encode entries: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reports
			(id, association_name, month, year, entries_json,
			 savings_deposit, savings_withdrawal, net_savings,
			 loan_disbursed, loan_repaid, net_loan,
			 snapshot_savings, snapshot_loan, created_at, updated_at, edit_history_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
			report.ID, report.AssociationName, report.Month, report.Year, string(entriesJSON),
			report.MonthlyTotals.SavingsDeposit.String(),
			report.MonthlyTotals.SavingsWithdrawal.String(),
			report.MonthlyTotals.NetSavings.String(),
			report.MonthlyTotals.LoanDisbursed.String(),
			report.MonthlyTotals.LoanRepaid.String(),
			report.MonthlyTotals.NetLoan.String(),
			totals.Savings.String(), totals.Loan.String(),
			report.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			if isUniqueConstraintError(err) {
				// The transaction rolls back, so the totals adjustment
				// above never lands.
				return &ledger.DuplicateReportError{Month: report.Month, Year: report.Year}
			}
			return fmt.Errorf("failed to insert report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) UpdateReportWithTotals(ctx context.Context, id ledger.ReportID, entries []ledger.ReportEntry, totals ledger.MonthlyTotals, netSavingsDelta, netLoanDelta decimal.Decimal) (*ledger.MonthlyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *ledger.MonthlyReport
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		reports, err := s.queryReportsTx(ctx, tx,
			`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return ledger.ErrReportNotFound
		}
		report := reports[0]

		snapshot, err := s.applyTotalsTx(ctx, tx, netSavingsDelta, netLoanDelta)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		report.Entries = entries
		report.MonthlyTotals = totals
		report.CumulativeTotalsAtEndOfReport = snapshot
		report.UpdatedAt = &now
		report.EditHistory = append(report.EditHistory, ledger.EditRecord{Timestamp: now, Action: "edit"})

		entriesJSON, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to encode entries: %w", err)
		}
		historyJSON, err := json.Marshal(report.EditHistory)
		if err != nil {
			return fmt.Errorf("failed to encode edit history: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE reports SET
				entries_json = ?,
				savings_deposit = ?, savings_withdrawal = ?, net_savings = ?,
				loan_disbursed = ?, loan_repaid = ?, net_loan = ?,
				snapshot_savings = ?, snapshot_loan = ?,
				updated_at = ?, edit_history_json = ?
			WHERE id = ?`,
			string(entriesJSON),
			totals.SavingsDeposit.String(), totals.SavingsWithdrawal.String(), totals.NetSavings.String(),
			totals.LoanDisbursed.String(), totals.LoanRepaid.String(), totals.NetLoan.String(),
			snapshot.Savings.String(), snapshot.Loan.String(),
			now.Format(time.RFC3339Nano), string(historyJSON), id)
		if err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}
		updated = &report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteReportWithTotals(ctx context.Context, id ledger.ReportID, netSavings, netLoan decimal.Decimal) (ledger.CumulativeTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals ledger.CumulativeTotals
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Totals first, then the record. The order matters for the audit
		// trail even though both land in one commit.
		var err error
		totals, err = s.applyTotalsTx(ctx, tx, netSavings, netLoan)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete report: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrReportNotFound
		}
		return nil
	})
	return totals, err
}

func (s *Store) DeleteAllReports(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM reports`)
	return err
}

// =============================================================================
// TOTALS STORE
// =============================================================================

func (s *Store) TotalsSnapshot(ctx context.Context) (ledger.CumulativeTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals ledger.CumulativeTotals
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		totals, err = s.totalsTx(ctx, tx)
		return err
	})
	return totals, err
}

func (s *Store) UpdateTotals(ctx context.Context, fn func(ledger.CumulativeTotals) ledger.CumulativeTotals) (ledger.CumulativeTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next ledger.CumulativeTotals
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := s.totalsTx(ctx, tx)
		if err != nil {
			return err
		}
		next = fn(current)
		return s.writeTotalsTx(ctx, tx, &next)
	})
	return next, err
}

func (s *Store) DeleteTotals(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM totals`)
	return err
}

// totalsTx reads the singleton totals row inside a transaction, inserting
// the zero record on first access.
func (s *Store) totalsTx(ctx context.Context, tx *sql.Tx) (ledger.CumulativeTotals, error) {
	var (
		savings, loan, lastUpdated string
		totals                     ledger.CumulativeTotals
	)
	err := tx.QueryRowContext(ctx,
		`SELECT savings, loan, last_updated FROM totals WHERE id = 1`).
		Scan(&savings, &loan, &lastUpdated)
	if err == sql.ErrNoRows {
		totals.LastUpdated = time.Now().UTC()
		if err := s.writeTotalsTx(ctx, tx, &totals); err != nil {
			return totals, err
		}
		return totals, nil
	}
	if err != nil {
		return totals, fmt.Errorf("failed to load totals: %w", err)
	}

	if totals.Savings, err = decimal.NewFromString(savings); err != nil {
		return totals, fmt.Errorf("corrupt totals savings %q: %w", savings, err)
	}
	if totals.Loan, err = decimal.NewFromString(loan); err != nil {
		return totals, fmt.Errorf("corrupt totals loan %q: %w", loan, err)
	}
	totals.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	return totals, nil
}

func (s *Store) writeTotalsTx(ctx context.Context, tx *sql.Tx, totals *ledger.CumulativeTotals) error {
	totals.LastUpdated = time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO totals (id, savings, loan, last_updated) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET savings = excluded.savings,
			loan = excluded.loan, last_updated = excluded.last_updated`,
		totals.Savings.String(), totals.Loan.String(),
		totals.LastUpdated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}
	return nil
}

// applyTotalsTx performs the read-modify-write of the totals row inside an
// existing transaction.
func (s *Store) applyTotalsTx(ctx context.Context, tx *sql.Tx, netSavings, netLoan decimal.Decimal) (ledger.CumulativeTotals, error) {
	current, err := s.totalsTx(ctx, tx)
	if err != nil {
		return current, err
	}
	next := current.Apply(netSavings, netLoan)
	if err := s.writeTotalsTx(ctx, tx, &next); err != nil {
		return next, err
	}
	return next, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrTotalsConflict, err)
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrTotalsConflict, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrTotalsConflict, err)
		}
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*ledger.Member, error) {
	var (
		m         ledger.Member
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.NameLowercase, &createdAt); err != nil {
		return nil, err
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]ledger.MonthlyReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

func (s *Store) queryReportsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]ledger.MonthlyReport, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

func collectReports(rows *sql.Rows) ([]ledger.MonthlyReport, error) {
	var reports []ledger.MonthlyReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanReport(rows *sql.Rows) (ledger.MonthlyReport, error) {
	var (
		r               ledger.MonthlyReport
		entriesJSON     string
		deposit         string
		withdrawal      string
		netSavings      string
		disbursed       string
		repaid          string
		netLoan         string
		snapshotSavings string
		snapshotLoan    string
		createdAt       string
		updatedAt       sql.NullString
		historyJSON     sql.NullString
	)
	err := rows.Scan(
		&r.ID, &r.AssociationName, &r.Month, &r.Year, &entriesJSON,
		&deposit, &withdrawal, &netSavings,
		&disbursed, &repaid, &netLoan,
		&snapshotSavings, &snapshotLoan, &createdAt, &updatedAt, &historyJSON,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan report: %w", err)
	}

	if err := json.Unmarshal([]byte(entriesJSON), &r.Entries); err != nil {
		return r, fmt.Errorf("corrupt report entries: %w", err)
	}
	r.MonthlyTotals, err = parseTotals(deposit, withdrawal, netSavings, disbursed, repaid, netLoan)
	if err != nil {
		return r, err
	}
	if r.CumulativeTotalsAtEndOfReport.Savings, err = decimal.NewFromString(snapshotSavings); err != nil {
		return r, fmt.Errorf("corrupt snapshot savings: %w", err)
	}
	if r.CumulativeTotalsAtEndOfReport.Loan, err = decimal.NewFromString(snapshotLoan); err != nil {
		return r, fmt.Errorf("corrupt snapshot loan: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if updatedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, updatedAt.String)
		r.UpdatedAt = &t
	}
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &r.EditHistory); err != nil {
			return r, fmt.Errorf("corrupt edit history: %w", err)
		}
	}
	return r, nil
}

func parseTotals(deposit, withdrawal, netSavings, disbursed, repaid, netLoan string) (ledger.MonthlyTotals, error) {
	var (
		t   ledger.MonthlyTotals
		err error
	)
	if t.SavingsDeposit, err = decimal.NewFromString(deposit); err != nil {
		return t, fmt.Errorf("corrupt savings deposit: %w", err)
	}
	if t.SavingsWithdrawal, err = decimal.NewFromString(withdrawal); err != nil {
		return t, fmt.Errorf("corrupt savings withdrawal: %w", err)
	}
	if t.NetSavings, err = decimal.NewFromString(netSavings); err != nil {
		return t, fmt.Errorf("corrupt net savings: %w", err)
	}
	if t.LoanDisbursed, err = decimal.NewFromString(disbursed); err != nil {
		return t, fmt.Errorf("corrupt loan disbursed: %w", err)
	}
	if t.LoanRepaid, err = decimal.NewFromString(repaid); err != nil {
		return t, fmt.Errorf("corrupt loan repaid: %w", err)
	}
	if t.NetLoan, err = decimal.NewFromString(netLoan); err != nil {
		return t, fmt.Errorf("corrupt net loan: %w", err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusyError reports whether err is SQLITE_BUSY or SQLITE_LOCKED, which a
// second process sharing the database file produces when transactions collide.
func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}
