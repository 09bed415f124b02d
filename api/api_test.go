package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/backend"
	"reqtrace/config"
	"reqtrace/core"
	"reqtrace/coverage"
	"reqtrace/service"
	"reqtrace/tables"
)

type mockReports struct {
	generate      func(ctx context.Context, req service.Request) (*service.Report, error)
	validateTable func(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error)
}

func (m *mockReports) Generate(ctx context.Context, req service.Request) (*service.Report, error) {
	if m.generate != nil {
		return m.generate(ctx, req)
	}
	return &service.Report{PlanID: req.PlanID}, nil
}

func (m *mockReports) ValidateTable(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error) {
	if m.validateTable != nil {
		return m.validateTable(ctx, ref, kind)
	}
	return &tables.Table{Source: ref, Kind: kind}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.API.RequestsPerSecond = 0
	return cfg
}

func setupTestAPI(t *testing.T, reports ReportGenerator, cfg *config.Config) *API {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	a := NewAPI(reports, cfg, nil)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func post(t *testing.T, a *API, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

const planJSON = `{
  "suites": [{"planId": 1, "id": 1, "name": "Root"}],
  "testPoints": [{"planId": 1, "suiteId": 1, "testCaseId": 100, "testCaseTitle": "Boot"}],
  "workItems": [
    {"id": 100, "rev": 1, "fields": {
      "System.Title": "Boot",
      "System.WorkItemType": "Test Case",
      "Microsoft.VSTS.TCM.Steps": "<steps id=\"0\" last=\"1\"><step id=\"1\" type=\"ValidateStep\"><parameterizedString isformatted=\"true\">Power on</parameterizedString><parameterizedString isformatted=\"true\">SR0001 boots</parameterizedString></step></steps>"
    }},
    {"id": 1, "rev": 1, "fields": {
      "System.Title": "Boots",
      "System.WorkItemType": "Requirement",
      "Custom.RequirementID": "SR0001",
      "System.AreaPath": "Proj"
    }}
  ],
  "requirementIds": [1]
}`

func snapshotReports(t *testing.T) *service.ReportService {
	t.Helper()
	snap, err := backend.ParseSnapshot([]byte(planJSON))
	require.NoError(t, err)
	return service.NewReportService(snap, nil, service.Options{}, nil)
}

func TestHealthCheck(t *testing.T) {
	a := setupTestAPI(t, &mockReports{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupTestAPI(t, &mockReports{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGenerateReport_Snapshot(t *testing.T) {
	a := setupTestAPI(t, snapshotReports(t), nil)

	rr := post(t, a, "/api/v1/reports", `{"planId": 1}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report service.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.PlanID)
	assert.Equal(t, coverage.DefaultCoverageSheet, report.Coverage.SheetName)
	require.Len(t, report.Coverage.Rows, 1)
	assert.Equal(t, "SR0001", report.Coverage.Rows[0].RequirementID)
	assert.Equal(t, core.SourceMentioned, report.Coverage.Rows[0].Source)
	require.Len(t, report.Validation.Rows, 1)
	assert.Equal(t, core.ValidationFail, report.Validation.Rows[0].ValidationStatus)
}

func TestGenerateCoverage(t *testing.T) {
	a := setupTestAPI(t, snapshotReports(t), nil)

	rr := post(t, a, "/api/v1/reports/coverage", `{"planId": 1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var payload coverage.CoverageFlatPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, coverage.CoverageColumns, payload.ColumnOrder)
	require.Len(t, payload.Rows, 1)

	rr = post(t, a, "/api/v1/reports/coverage?format=records", `{"planId": 1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var records sheetRecords
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records.Records, 1)
	assert.Equal(t, "100", records.Records[0]["Test Case ID"])
	assert.Equal(t, "", records.Records[0]["Bug ID"])
}

func TestGenerateValidation(t *testing.T) {
	a := setupTestAPI(t, snapshotReports(t), nil)

	rr := post(t, a, "/api/v1/reports/validation?format=records", `{"planId": 1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var records sheetRecords
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Equal(t, coverage.DefaultValidationSheet, records.SheetName)
	require.Len(t, records.Records, 1)
	assert.Equal(t, "Step 1: SR0001", records.Records[0]["Mentioned Not Linked"])
}

func TestGenerateReport_BadRequests(t *testing.T) {
	called := false
	a := setupTestAPI(t, &mockReports{generate: func(ctx context.Context, req service.Request) (*service.Report, error) {
		called = true
		return &service.Report{}, nil
	}}, nil)

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"syntax", `{"planId":`, http.StatusBadRequest, "Invalid JSON"},
		{"wrong type", `{"planId": "one"}`, http.StatusBadRequest, "Invalid type for field"},
		{"unknown field", `{"planId": 1, "extra": true}`, http.StatusBadRequest, "unknown field"},
		{"missing plan", `{}`, http.StatusBadRequest, "Invalid request"},
		{"bad suite id", `{"planId": 1, "suiteIds": [0]}`, http.StatusBadRequest, "Invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, a, "/api/v1/reports", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, decodeError(t, rr).Error, tt.errMsg)
		})
	}
	assert.False(t, called)
}

func TestGenerateReport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: unknown suite 9", core.ErrInvalidRequest), http.StatusBadRequest},
		{"not found", fmt.Errorf("plan: %w", core.ErrNotFound), http.StatusNotFound},
		{"required pull", fmt.Errorf("%w: failed to list suites", core.ErrRequiredPullFailed), http.StatusBadGateway},
		{"upstream", fmt.Errorf("%w: GET suites", core.ErrUpstream), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"table rejected", &tables.ValidationError{Source: "bugs.csv", Kind: tables.KindBugs, Missing: []string{"Bug ID"}, Err: tables.ErrMissingColumns}, http.StatusUnprocessableEntity},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setupTestAPI(t, &mockReports{generate: func(ctx context.Context, req service.Request) (*service.Report, error) {
				return nil, tt.err
			}}, nil)
			rr := post(t, a, "/api/v1/reports", `{"planId": 1}`)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestGenerateReport_TableRejectionDetails(t *testing.T) {
	a := setupTestAPI(t, &mockReports{generate: func(ctx context.Context, req service.Request) (*service.Report, error) {
		return nil, fmt.Errorf("bugs table: %w", &tables.ValidationError{
			Source: "bugs.csv", Kind: tables.KindBugs, HeaderRow: "A1",
			MatchedRequired: 2, TotalRequired: 4,
			Missing: []string{"Bug ID", "Bug Title"}, Err: tables.ErrMissingColumns,
		})
	}}, nil)

	rr := post(t, a, "/api/v1/reports", `{"planId": 1, "bugsTable": "bugs.csv"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Error   string                 `json:"error"`
		Details tables.ValidationError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "rejected")
	assert.Equal(t, []string{"Bug ID", "Bug Title"}, body.Details.Missing)
	assert.Equal(t, 2, body.Details.MatchedRequired)
}

func TestValidateTable(t *testing.T) {
	a := setupTestAPI(t, &mockReports{validateTable: func(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error) {
		return &tables.Table{
			Source: ref, Kind: kind, HeaderRow: "A3", MatchedRequired: 4, TotalRequired: 4,
			Records: []tables.Record{{"Bug ID": "1"}, {"Bug ID": "2"}}, Discarded: 1,
		}, nil
	}}, nil)

	rr := post(t, a, "/api/v1/tables/validate", `{"ref": "s3://reports/bugs.xlsx", "kind": "bugs"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary tableSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, "s3://reports/bugs.xlsx", summary.Source)
	assert.Equal(t, "A3", summary.HeaderRow)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Discarded)

	rr = post(t, a, "/api/v1/tables/validate", `{"ref": "bugs.csv", "kind": "other"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(t, a, "/api/v1/tables/validate", `{"kind": "bugs"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValidateTable_NotConfigured(t *testing.T) {
	a := setupTestAPI(t, snapshotReports(t), nil)
	rr := post(t, a, "/api/v1/tables/validate", `{"ref": "bugs.csv", "kind": "bugs"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Error, "not configured")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.API.RequestsPerSecond = 0.001
	cfg.API.Burst = 1
	a := setupTestAPI(t, &mockReports{}, cfg)

	first := post(t, a, "/api/v1/reports", `{"planId": 1}`)
	assert.Equal(t, http.StatusOK, first.Code)
	second := post(t, a, "/api/v1/reports", `{"planId": 1}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "token=[REDACTED] rejected", sanitizeErrorMessage("token=abc123 rejected"))
	assert.Equal(t, "header Basic [REDACTED]", sanitizeErrorMessage("header Basic OmFiYzEyMw=="))
	long := sanitizeErrorMessage(string(bytes.Repeat([]byte("x"), 2000)))
	assert.Len(t, long, maxErrorMessageLength)
}

func TestMethodNotAllowed(t *testing.T) {
	a := setupTestAPI(t, &mockReports{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
