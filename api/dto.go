/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS ON THE WIRE:
  Every amount travels as a decimal string ("1500.50"). Floats never touch
  money, in either direction.

SEE ALSO:
  - handlers.go: uses these types
  - ledger/types.go: the domain shapes these map from
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/khata/society-engine/ledger"
	"github.com/khata/society-engine/society"
)

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateMemberRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// REPORT ENTRIES
// =============================================================================

// EntryDTO carries one member's amounts for one month. Amounts are decimal
// strings; absent fields default to "0".
type EntryDTO struct {
	MemberID          string `json:"member_id"`
	MemberName        string `json:"member_name"`
	Savings           string `json:"savings,omitempty"`
	SavingsWithdrawal string `json:"savings_withdrawal,omitempty"`
	LoanDisbursed     string `json:"loan_disbursed,omitempty"`
	LoanRepayment     string `json:"loan_repayment,omitempty"`
	Deleted           bool   `json:"member_deleted,omitempty"`
}

type MonthlyTotalsDTO struct {
	SavingsDeposit    string `json:"savings_deposit"`
	SavingsWithdrawal string `json:"savings_withdrawal"`
	NetSavings        string `json:"net_savings"`
	LoanDisbursed     string `json:"loan_disbursed"`
	LoanRepaid        string `json:"loan_repaid"`
	NetLoan           string `json:"net_loan"`
}

type TotalsDTO struct {
	Savings     string `json:"savings"`
	Loan        string `json:"loan"`
	CashOnHand  string `json:"cash_on_hand"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type ReportDTO struct {
	ID              string           `json:"id"`
	AssociationName string           `json:"association_name,omitempty"`
	Month           string           `json:"month"`
	Year            int              `json:"year"`
	Entries         []EntryDTO       `json:"entries"`
	MonthlyTotals   MonthlyTotalsDTO `json:"monthly_totals"`
	Cumulative      TotalsDTO        `json:"cumulative_totals"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at,omitempty"`
}

type CreateReportRequest struct {
	AssociationName string     `json:"association_name"`
	Month           string     `json:"month"`
	Year            int        `json:"year"`
	Entries         []EntryDTO `json:"entries"`
}

type UpdateReportRequest struct {
	Entries []EntryDTO `json:"entries"`
}

// ValidateEntryRequest checks one candidate entry against a draft report.
type ValidateEntryRequest struct {
	Month string     `json:"month"`
	Year  int        `json:"year"`
	Draft []EntryDTO `json:"draft"`
	Entry EntryDTO   `json:"entry"`
}

type ValidateBatchRequest struct {
	Month      string     `json:"month"`
	Year       int        `json:"year"`
	Draft      []EntryDTO `json:"draft"`
	Candidates []EntryDTO `json:"candidates"`
}

type ValidateBatchResponse struct {
	Accepted []EntryDTO        `json:"accepted"`
	Failures []EntryFailureDTO `json:"failures"`
}

type EntryFailureDTO struct {
	Entry EntryDTO `json:"entry"`
	Error string   `json:"error"`
}

// =============================================================================
// SUMMARIES
// =============================================================================

type AnnualSummaryDTO struct {
	Year            int                    `json:"year"`
	Empty           bool                   `json:"empty"`
	StartOfYear     TotalsDTO              `json:"start_of_year_totals"`
	EndOfYear       TotalsDTO              `json:"end_of_year_totals"`
	Months          []MonthRowDTO          `json:"months"`
	YearTotals      MonthlyTotalsDTO       `json:"year_totals"`
	MemberSummaries []MemberYearSummaryDTO `json:"member_summaries"`
}

type MonthRowDTO struct {
	ReportID string           `json:"report_id"`
	Month    string           `json:"month"`
	Totals   MonthlyTotalsDTO `json:"totals"`
	Snapshot TotalsDTO        `json:"snapshot"`
}

type MemberYearSummaryDTO struct {
	MemberID   string `json:"member_id"`
	Name       string `json:"name"`
	NetSavings string `json:"net_savings"`
	NetLoan    string `json:"net_loan"`
}

type StatementDTO struct {
	MemberID   string             `json:"member_id"`
	Name       string             `json:"name"`
	Lines      []StatementLineDTO `json:"lines"`
	NetSavings string             `json:"net_savings"`
	NetLoan    string             `json:"net_loan"`
}

type StatementLineDTO struct {
	ReportID          string `json:"report_id"`
	Month             string `json:"month"`
	Year              int    `json:"year"`
	Savings           string `json:"savings"`
	SavingsWithdrawal string `json:"savings_withdrawal"`
	LoanDisbursed     string `json:"loan_disbursed"`
	LoanRepayment     string `json:"loan_repayment"`
	RunningSavings    string `json:"running_savings"`
	RunningLoan       string `json:"running_loan"`
}

type DistributionDTO struct {
	Year               int                  `json:"year"`
	Rows               []DistributionRowDTO `json:"rows"`
	TotalSavings       string               `json:"total_savings"`
	TotalLoanDisbursed string               `json:"total_loan_disbursed"`
}

type DistributionRowDTO struct {
	MemberID      string `json:"member_id"`
	Name          string `json:"name"`
	Savings       string `json:"savings"`
	LoanDisbursed string `json:"loan_disbursed"`
}

type BalanceDTO struct {
	MemberID   string `json:"member_id"`
	AsOf       string `json:"as_of"`
	NetSavings string `json:"net_savings"`
	NetLoan    string `json:"net_loan"`
}

type AuditDTO struct {
	Consistent bool      `json:"consistent"`
	Stored     TotalsDTO `json:"stored"`
	Computed   TotalsDTO `json:"computed"`
	Reports    int       `json:"reports"`
	Members    int       `json:"members"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		ID:        string(m.ID),
		Name:      m.Name,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e ledger.ReportEntry) EntryDTO {
	return EntryDTO{
		MemberID:          string(e.MemberID),
		MemberName:        e.MemberName,
		Savings:           e.Savings.String(),
		SavingsWithdrawal: e.SavingsWithdrawal.String(),
		LoanDisbursed:     e.LoanDisbursed.String(),
		LoanRepayment:     e.LoanRepayment.String(),
	}
}

func toEntryDTOs(entries []ledger.ReportEntry, refs []ledger.MemberRef) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
		if refs != nil {
			dtos[i].Deleted = refs[i].Deleted()
			dtos[i].MemberName = refs[i].DisplayName(e.MemberName)
		}
	}
	return dtos
}

func fromEntryDTO(dto EntryDTO) (ledger.ReportEntry, error) {
	entry := ledger.ReportEntry{
		MemberID:   ledger.MemberID(dto.MemberID),
		MemberName: dto.MemberName,
	}
	var err error
	if entry.Savings, err = parseAmount(dto.Savings); err != nil {
		return entry, err
	}
	if entry.SavingsWithdrawal, err = parseAmount(dto.SavingsWithdrawal); err != nil {
		return entry, err
	}
	if entry.LoanDisbursed, err = parseAmount(dto.LoanDisbursed); err != nil {
		return entry, err
	}
	if entry.LoanRepayment, err = parseAmount(dto.LoanRepayment); err != nil {
		return entry, err
	}
	return entry, nil
}

func fromEntryDTOs(dtos []EntryDTO) ([]ledger.ReportEntry, error) {
	entries := make([]ledger.ReportEntry, 0, len(dtos))
	for _, dto := range dtos {
		entry, err := fromEntryDTO(dto)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func toMonthlyTotalsDTO(t ledger.MonthlyTotals) MonthlyTotalsDTO {
	return MonthlyTotalsDTO{
		SavingsDeposit:    t.SavingsDeposit.String(),
		SavingsWithdrawal: t.SavingsWithdrawal.String(),
		NetSavings:        t.NetSavings.String(),
		LoanDisbursed:     t.LoanDisbursed.String(),
		LoanRepaid:        t.LoanRepaid.String(),
		NetLoan:           t.NetLoan.String(),
	}
}

func toTotalsDTO(t ledger.CumulativeTotals) TotalsDTO {
	dto := TotalsDTO{
		Savings:    t.Savings.String(),
		Loan:       t.Loan.String(),
		CashOnHand: t.CashOnHand().String(),
	}
	if !t.LastUpdated.IsZero() {
		dto.LastUpdated = t.LastUpdated.Format(time.RFC3339)
	}
	return dto
}

func toReportDTO(r *ledger.MonthlyReport, refs []ledger.MemberRef) ReportDTO {
	dto := ReportDTO{
		ID:              string(r.ID),
		AssociationName: r.AssociationName,
		Month:           string(r.Month),
		Year:            r.Year,
		Entries:         toEntryDTOs(r.Entries, refs),
		MonthlyTotals:   toMonthlyTotalsDTO(r.MonthlyTotals),
		Cumulative:      toTotalsDTO(r.CumulativeTotalsAtEndOfReport),
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.UpdatedAt != nil {
		dto.UpdatedAt = r.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toAnnualSummaryDTO(s *society.AnnualSummary) AnnualSummaryDTO {
	dto := AnnualSummaryDTO{
		Year:        s.Year,
		Empty:       s.Empty,
		StartOfYear: toTotalsDTO(s.StartOfYearTotals),
		EndOfYear:   toTotalsDTO(s.EndOfYearTotals),
		YearTotals:  toMonthlyTotalsDTO(s.YearTotals),
	}
	for _, m := range s.Months {
		dto.Months = append(dto.Months, MonthRowDTO{
			ReportID: string(m.ReportID),
			Month:    string(m.Month),
			Totals:   toMonthlyTotalsDTO(m.Totals),
			Snapshot: toTotalsDTO(m.Snapshot),
		})
	}
	for _, m := range s.MemberSummaries {
		dto.MemberSummaries = append(dto.MemberSummaries, MemberYearSummaryDTO{
			MemberID:   string(m.MemberID),
			Name:       m.Name,
			NetSavings: m.NetSavings.String(),
			NetLoan:    m.NetLoan.String(),
		})
	}
	return dto
}

func toStatementDTO(st *society.MemberStatement) StatementDTO {
	dto := StatementDTO{
		MemberID:   string(st.MemberID),
		Name:       st.Name,
		NetSavings: st.NetSavings.String(),
		NetLoan:    st.NetLoan.String(),
	}
	for _, l := range st.Lines {
		dto.Lines = append(dto.Lines, StatementLineDTO{
			ReportID:          string(l.ReportID),
			Month:             string(l.Month),
			Year:              l.Year,
			Savings:           l.Savings.String(),
			SavingsWithdrawal: l.SavingsWithdrawal.String(),
			LoanDisbursed:     l.LoanDisbursed.String(),
			LoanRepayment:     l.LoanRepayment.String(),
			RunningSavings:    l.RunningSavings.String(),
			RunningLoan:       l.RunningLoan.String(),
		})
	}
	return dto
}

func toDistributionDTO(d *society.MemberDistribution) DistributionDTO {
	dto := DistributionDTO{
		Year:               d.Year,
		TotalSavings:       d.TotalSavings.String(),
		TotalLoanDisbursed: d.TotalLoanDisbursed.String(),
	}
	for _, r := range d.Rows {
		dto.Rows = append(dto.Rows, DistributionRowDTO{
			MemberID:      string(r.MemberID),
			Name:          r.Name,
			Savings:       r.Savings.String(),
			LoanDisbursed: r.LoanDisbursed.String(),
		})
	}
	return dto
}

func toAuditDTO(a *society.LedgerAudit) AuditDTO {
	return AuditDTO{
		Consistent: a.Consistent,
		Stored:     toTotalsDTO(a.Stored),
		Computed:   toTotalsDTO(a.Computed),
		Reports:    a.Reports,
		Members:    a.Members,
	}
}
