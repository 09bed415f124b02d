package api

import (
	"net/http"
	"time"

	"reqtrace/service"
	"reqtrace/tables"
)

// sheetRecords is the records form of a sheet payload, selected with ?format=records
type sheetRecords struct {
	SheetName   string                   `json:"sheetName"`
	ColumnOrder []string                 `json:"columnOrder"`
	Records     []map[string]interface{} `json:"records"`
}

// tableRequest selects an external table to check
type tableRequest struct {
	Ref  string      `json:"ref" validate:"required"`
	Kind tables.Kind `json:"kind" validate:"required,oneof=bugs l3l4"`
}

// tableSummary describes an accepted external table
type tableSummary struct {
	Source                 string      `json:"source"`
	Kind                   tables.Kind `json:"kind"`
	HeaderRow              string      `json:"headerRow"`
	MatchedRequiredColumns int         `json:"matchedRequiredColumns"`
	TotalRequiredColumns   int         `json:"totalRequiredColumns"`
	Records                int         `json:"records"`
	Discarded              int         `json:"discarded"`
}

func (a *API) runReport(w http.ResponseWriter, r *http.Request) (*service.Report, bool) {
	var req service.Request
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		return nil, false
	}
	report, err := a.reports.Generate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return nil, false
	}
	return report, true
}

func wantRecords(r *http.Request) bool {
	return r.URL.Query().Get("format") == "records"
}

// generateReport returns both sheets of one run
func (a *API) generateReport(w http.ResponseWriter, r *http.Request) {
	report, ok := a.runReport(w, r)
	if !ok {
		return
	}
	a.respondJSON(w, report, http.StatusOK)
}

// generateCoverage returns the coverage sheet
func (a *API) generateCoverage(w http.ResponseWriter, r *http.Request) {
	report, ok := a.runReport(w, r)
	if !ok {
		return
	}
	if wantRecords(r) {
		a.respondJSON(w, sheetRecords{
			SheetName:   report.Coverage.SheetName,
			ColumnOrder: report.Coverage.ColumnOrder,
			Records:     report.Coverage.Records(),
		}, http.StatusOK)
		return
	}
	a.respondJSON(w, report.Coverage, http.StatusOK)
}

// generateValidation returns the internal validation sheet
func (a *API) generateValidation(w http.ResponseWriter, r *http.Request) {
	report, ok := a.runReport(w, r)
	if !ok {
		return
	}
	if wantRecords(r) {
		a.respondJSON(w, sheetRecords{
			SheetName:   report.Validation.SheetName,
			ColumnOrder: report.Validation.ColumnOrder,
			Records:     report.Validation.Records(),
		}, http.StatusOK)
		return
	}
	a.respondJSON(w, report.Validation, http.StatusOK)
}

// validateTable checks one external table without building a report
func (a *API) validateTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		return
	}
	t, err := a.reports.ValidateTable(r.Context(), req.Ref, req.Kind)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.respondJSON(w, tableSummary{
		Source:                 t.Source,
		Kind:                   t.Kind,
		HeaderRow:              t.HeaderRow,
		MatchedRequiredColumns: t.MatchedRequired,
		TotalRequiredColumns:   t.TotalRequired,
		Records:                len(t.Records),
		Discarded:              t.Discarded,
	}, http.StatusOK)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if a.reports == nil {
		status = "degraded"
	}
	a.respondJSON(w, map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}
