package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata/society-engine/api"
	"github.com/khata/society-engine/ledger/store"
	"github.com/khata/society-engine/society"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	service := society.NewService(store.NewMemory(), log)
	server := httptest.NewServer(api.NewRouter(api.NewHandler(service)))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func createMember(t *testing.T, base, name string) api.MemberDTO {
	t.Helper()
	resp, raw := doJSON(t, http.MethodPost, base+"/api/members", api.CreateMemberRequest{Name: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var dto api.MemberDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	return dto
}

func createReport(t *testing.T, base string, req api.CreateReportRequest) api.ReportDTO {
	t.Helper()
	resp, raw := doJSON(t, http.MethodPost, base+"/api/reports", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var dto api.ReportDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	return dto
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

func TestAPI_MemberLifecycle(t *testing.T) {
	server := newTestServer(t)

	member := createMember(t, server.URL, "Rahim")
	assert.Equal(t, "Rahim", member.Name)
	assert.NotEmpty(t, member.ID)

	// Duplicate name conflicts.
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/members", api.CreateMemberRequest{Name: "rahim"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Blank name is a plain validation failure.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/members", api.CreateMemberRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet, server.URL+"/api/members", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var members []api.MemberDTO
	require.NoError(t, json.Unmarshal(raw, &members))
	assert.Len(t, members, 1)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/members/"+member.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/members/"+member.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

func TestAPI_CreateReportAndTotals(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	report := createReport(t, server.URL, api.CreateReportRequest{
		AssociationName: "Samity",
		Month:           "January",
		Year:            2024,
		Entries: []api.EntryDTO{{
			MemberID:      member.ID,
			MemberName:    "Rahim",
			Savings:       "500",
			LoanDisbursed: "200",
		}},
	})
	assert.Equal(t, "January", report.Month)
	assert.Equal(t, "500", report.MonthlyTotals.SavingsDeposit)
	assert.Equal(t, "500", report.Cumulative.Savings)
	assert.Equal(t, "200", report.Cumulative.Loan)
	assert.Equal(t, "300", report.Cumulative.CashOnHand)

	resp, raw := doJSON(t, http.MethodGet, server.URL+"/api/totals", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var totals api.TotalsDTO
	require.NoError(t, json.Unmarshal(raw, &totals))
	assert.Equal(t, "500", totals.Savings)
	assert.Equal(t, "200", totals.Loan)
}

func TestAPI_DuplicateReportConflicts(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	req := api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "100"}},
	}
	createReport(t, server.URL, req)

	resp, raw := doJSON(t, http.MethodPost, server.URL+"/api/reports", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))
}

func TestAPI_UpdateAndDeleteReport(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	report := createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "500"}},
	})

	resp, raw := doJSON(t, http.MethodPut, server.URL+"/api/reports/"+report.ID, api.UpdateReportRequest{
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "300"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var updated api.ReportDTO
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, "300", updated.Cumulative.Savings)
	assert.NotEmpty(t, updated.UpdatedAt)

	resp, raw = doJSON(t, http.MethodDelete, server.URL+"/api/reports/"+report.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var totals api.TotalsDTO
	require.NoError(t, json.Unmarshal(raw, &totals))
	assert.Equal(t, "0", totals.Savings)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/reports/"+report.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InvalidAmountRejected(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/reports", api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "not-a-number"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// VALIDATION ENDPOINTS
// =============================================================================

func TestAPI_ValidateEntry_Overdraft(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "500"}},
	})

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/reports/validate", api.ValidateEntryRequest{
		Month: "February", Year: 2024,
		Entry: api.EntryDTO{MemberID: member.ID, SavingsWithdrawal: "200"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodPost, server.URL+"/api/reports/validate", api.ValidateEntryRequest{
		Month: "February", Year: 2024,
		Entry: api.EntryDTO{MemberID: member.ID, SavingsWithdrawal: "600"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Contains(t, errResp.Details, "insufficient savings")
}

func TestAPI_ValidateBatch_PartialFailure(t *testing.T) {
	server := newTestServer(t)
	rahim := createMember(t, server.URL, "Rahim")
	karim := createMember(t, server.URL, "Karim")

	createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: rahim.ID, Savings: "500"}},
	})

	resp, raw := doJSON(t, http.MethodPost, server.URL+"/api/reports/validate-batch", api.ValidateBatchRequest{
		Month: "February", Year: 2024,
		Candidates: []api.EntryDTO{
			{MemberID: rahim.ID, SavingsWithdrawal: "200"},
			{MemberID: karim.ID, SavingsWithdrawal: "100"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result api.ValidateBatchResponse
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, rahim.ID, result.Accepted[0].MemberID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, karim.ID, result.Failures[0].Entry.MemberID)
}

// =============================================================================
// SUMMARY AND ADMIN ENDPOINTS
// =============================================================================

func TestAPI_AnnualSummaryAndBalance(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "500"}},
	})

	resp, raw := doJSON(t, http.MethodGet, server.URL+"/api/summary/annual/2024", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary api.AnnualSummaryDTO
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.False(t, summary.Empty)
	assert.Equal(t, "500", summary.EndOfYear.Savings)

	resp, raw = doJSON(t, http.MethodGet,
		server.URL+"/api/members/"+member.ID+"/balance?as_of=2024-12-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance api.BalanceDTO
	require.NoError(t, json.Unmarshal(raw, &balance))
	assert.Equal(t, "500", balance.NetSavings)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/summary/annual/zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_BalanceForUnknownMember(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/members/nope/balance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StatementEndpoint(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "500"}},
	})

	resp, raw := doJSON(t, http.MethodGet, server.URL+"/api/members/"+member.ID+"/statement", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var statement api.StatementDTO
	require.NoError(t, json.Unmarshal(raw, &statement))
	require.Len(t, statement.Lines, 1)
	assert.Equal(t, "500", statement.Lines[0].RunningSavings)
}

func TestAPI_AuditAndReset(t *testing.T) {
	server := newTestServer(t)
	member := createMember(t, server.URL, "Rahim")

	createReport(t, server.URL, api.CreateReportRequest{
		Month: "January", Year: 2024,
		Entries: []api.EntryDTO{{MemberID: member.ID, Savings: "500"}},
	})

	resp, raw := doJSON(t, http.MethodGet, server.URL+"/api/admin/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit api.AuditDTO
	require.NoError(t, json.Unmarshal(raw, &audit))
	assert.True(t, audit.Consistent)
	assert.Equal(t, 1, audit.Reports)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/admin/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, http.MethodGet, server.URL+"/api/totals", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var totals api.TotalsDTO
	require.NoError(t, json.Unmarshal(raw, &totals))
	assert.Equal(t, "0", totals.Savings)
}
