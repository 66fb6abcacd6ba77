/*
handlers.go - HTTP handlers over the society service

PURPOSE:
  Translates HTTP requests into society.Service calls and domain results
  back into DTOs. No business logic lives here; a handler parses, calls,
  and maps the outcome to a status code.

STATUS MAPPING:
  validation errors        -> 400 (duplicates -> 409)
  not found                -> 404
  totals conflict          -> 409
  ledger drift (audit)     -> 500, with both sides of the mismatch
  everything else          -> 500

SEE ALSO:
  - server.go: route wiring
  - ledger/errors.go: the Is* helpers this mapping relies on
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khata/society-engine/ledger"
	"github.com/khata/society-engine/society"
)

// Handler holds the service all endpoints share.
type Handler struct {
	Service *society.Service
}

func NewHandler(service *society.Service) *Handler {
	return &Handler{Service: service}
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// ListMembers returns all members.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Service.Members(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, toMemberDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a new member.
// POST /api/members
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	member, err := h.Service.AddMember(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to add member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(*member))
}

// DeleteMember removes a member and settles their all-time net effect.
// DELETE /api/members/{id}
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))
	totals, err := h.Service.RemoveMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to remove member", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// GetMemberStatement returns the member's chronological statement.
// GET /api/members/{id}/statement
func (h *Handler) GetMemberStatement(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))
	statement, err := h.Service.MemberStatement(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(statement))
}

// GetMemberBalance returns the member's replayed balances as of a date.
// GET /api/members/{id}/balance?as_of=2024-12-31
func (h *Handler) GetMemberBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))
	if _, err := h.Service.Member(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date, expected YYYY-MM-DD", err)
			return
		}
		asOf = parsed
	}

	savings, err := h.Service.NetSavingsAsOf(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	loan, err := h.Service.NetLoanAsOf(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		MemberID:   string(id),
		AsOf:       asOf.Format("2006-01-02"),
		NetSavings: savings.String(),
		NetLoan:    loan.String(),
	})
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// ListReports returns all reports, newest first.
// GET /api/reports
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Service.Reports(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list reports", err)
		return
	}
	h.writeReportList(w, r, reports)
}

// ListReportsByYear returns a year's reports in creation order.
// GET /api/reports/year/{year}
func (h *Handler) ListReportsByYear(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	reports, err := h.Service.ReportsByYear(r.Context(), year)
	if err != nil {
		writeDomainError(w, "Failed to list reports", err)
		return
	}
	h.writeReportList(w, r, reports)
}

func (h *Handler) writeReportList(w http.ResponseWriter, r *http.Request, reports []ledger.MonthlyReport) {
	dtos := make([]ReportDTO, 0, len(reports))
	for i := range reports {
		refs, err := h.Service.MemberRefs(r.Context(), reports[i].Entries)
		if err != nil {
			writeDomainError(w, "Failed to resolve members", err)
			return
		}
		dtos = append(dtos, toReportDTO(&reports[i], refs))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReport loads one report.
// GET /api/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := ledger.ReportID(chi.URLParam(r, "id"))
	report, err := h.Service.Report(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load report", err)
		return
	}
	refs, err := h.Service.MemberRefs(r.Context(), report.Entries)
	if err != nil {
		writeDomainError(w, "Failed to resolve members", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report, refs))
}

// CreateReport creates a monthly report and applies its net effect to the
// cumulative totals.
// POST /api/reports
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	entries, err := fromEntryDTOs(req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}
	report, err := h.Service.CreateMonthlyReport(r.Context(), entries,
		ledger.Month(req.Month), req.Year, req.AssociationName)
	if err != nil {
		writeDomainError(w, "Failed to create report", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(report, nil))
}

// UpdateReport replaces a report's entries, adjusting the totals by the
// active-member delta.
// PUT /api/reports/{id}
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id := ledger.ReportID(chi.URLParam(r, "id"))
	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	entries, err := fromEntryDTOs(req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}
	report, err := h.Service.UpdateMonthlyReport(r.Context(), id, entries)
	if err != nil {
		writeDomainError(w, "Failed to update report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report, nil))
}

// DeleteReport deletes a report after recalculating the totals.
// DELETE /api/reports/{id}
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id := ledger.ReportID(chi.URLParam(r, "id"))
	totals, err := h.Service.DeleteMonthlyReport(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to delete report", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// ValidateEntry checks one candidate entry against a draft report.
// POST /api/reports/validate
func (h *Handler) ValidateEntry(w http.ResponseWriter, r *http.Request) {
	var req ValidateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	draft, err := fromEntryDTOs(req.Draft)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}
	entry, err := fromEntryDTO(req.Entry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}
	if err := h.Service.ValidateEntry(r.Context(), draft, entry, ledger.Month(req.Month), req.Year); err != nil {
		writeDomainError(w, "Entry rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ValidateBatch checks a batch of candidate entries. A cash-on-hand failure
// rejects the whole batch; per-member failures are itemized while the rest
// of the batch is accepted.
// POST /api/reports/validate-batch
func (h *Handler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req ValidateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	draft, err := fromEntryDTOs(req.Draft)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}
	candidates, err := fromEntryDTOs(req.Candidates)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry amount", err)
		return
	}

	accepted, failures, err := h.Service.ValidateBatch(r.Context(), draft, candidates,
		ledger.Month(req.Month), req.Year)
	if err != nil {
		writeDomainError(w, "Batch rejected", err)
		return
	}

	resp := ValidateBatchResponse{
		Accepted: toEntryDTOs(accepted, nil),
		Failures: make([]EntryFailureDTO, 0, len(failures)),
	}
	for _, f := range failures {
		resp.Failures = append(resp.Failures, EntryFailureDTO{
			Entry: toEntryDTO(f.Entry),
			Error: f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SUMMARY ENDPOINTS
// =============================================================================

// GetAnnualSummary returns the year's position.
// GET /api/summary/annual/{year}
func (h *Handler) GetAnnualSummary(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	summary, err := h.Service.AnnualSummary(r.Context(), year)
	if err != nil {
		writeDomainError(w, "Failed to build annual summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnnualSummaryDTO(summary))
}

// GetMemberDistribution returns the year's per-member breakdown.
// GET /api/summary/distribution/{year}
func (h *Handler) GetMemberDistribution(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	dist, err := h.Service.MemberDistribution(r.Context(), year)
	if err != nil {
		writeDomainError(w, "Failed to build distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, toDistributionDTO(dist))
}

// GetTotals returns the cumulative totals snapshot.
// GET /api/totals
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Service.Totals(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(totals))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// AuditLedger runs the conservation check. Drift is a 500: the books need
// a human, not a retry.
// GET /api/admin/audit
func (h *Handler) AuditLedger(w http.ResponseWriter, r *http.Request) {
	audit, err := h.Service.AuditLedger(r.Context())
	if err != nil {
		if audit != nil && ledger.IsConsistency(err) {
			writeJSON(w, http.StatusInternalServerError, toAuditDTO(audit))
			return
		}
		writeDomainError(w, "Audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(audit))
}

// ResetDatabase clears all data.
// POST /api/admin/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ResetAllData(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if year <= 0 {
		return 0, errors.New("year must be positive")
	}
	return year, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateReport),
		errors.Is(err, ledger.ErrDuplicateMember):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
