package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"reqtrace/core"
	"reqtrace/coverage"
	"reqtrace/service"
	"reqtrace/tables"
)

// Output formats
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func checkOutput(output string) error {
	switch output {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q: use table, json or yaml", output)
}

// writeData writes data as indented JSON or YAML.
func writeData(w io.Writer, output string, data interface{}) error {
	if output == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

type sheetRecords struct {
	SheetName   string                   `json:"sheetName" yaml:"sheetName"`
	ColumnOrder []string                 `json:"columnOrder" yaml:"columnOrder"`
	Records     []map[string]interface{} `json:"records" yaml:"records"`
}

func coverageRecords(report *service.Report) sheetRecords {
	return sheetRecords{
		SheetName:   report.Coverage.SheetName,
		ColumnOrder: report.Coverage.ColumnOrder,
		Records:     report.Coverage.Records(),
	}
}

func validationRecords(report *service.Report) sheetRecords {
	return sheetRecords{
		SheetName:   report.Validation.SheetName,
		ColumnOrder: report.Validation.ColumnOrder,
		Records:     report.Validation.Records(),
	}
}

// renderSummary displays the run statistics
func renderSummary(w io.Writer, report *service.Report) {
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	headerColor.Fprintf(w, "  Coverage Report: plan %d\n", report.PlanID)
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	printSection(w, "Run")
	printField(w, "Run ID", report.RunID)
	printField(w, "Generated", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	printField(w, "Suites", fmt.Sprintf("%d", report.Stats.Suites))
	printField(w, "Test Cases", fmt.Sprintf("%d", report.Stats.TestCases))
	printField(w, "Requirements", fmt.Sprintf("%d", report.Stats.Requirements))
	printField(w, "Families", fmt.Sprintf("%d", report.Stats.Families))
	if report.Stats.Degraded > 0 {
		printField(w, "Degraded Fetches", warningColor.Sprintf("%d", report.Stats.Degraded))
	}

	failed := failedValidations(report)
	if failed == 0 {
		printField(w, "Validation", successColor.Sprint("all test cases pass"))
	} else {
		printField(w, "Validation", errorColor.Sprintf("%d of %d test cases fail", failed, len(report.Validation.Rows)))
	}
	fmt.Fprintln(w)
}

// renderCoverageTable displays coverage rows in a formatted table
func renderCoverageTable(w io.Writer, p coverage.CoverageFlatPayload) {
	headerColor.Fprintln(w, strings.ToUpper(p.SheetName))
	headerColor.Fprintln(w, strings.Repeat("=", 130))
	if len(p.Rows) == 0 {
		warningColor.Fprintln(w, "No requirements in scope")
		return
	}
	fmt.Fprintf(w, "%-14s %-30s %-8s %-24s %-16s %-4s %-4s %-4s %-8s %-8s %-10s\n",
		"Requirement", "Title", "TC", "Test Case", "Source", "P", "F", "NR", "Status", "Bug", "L3/L4")
	fmt.Fprintln(w, strings.Repeat("-", 130))

	for _, r := range p.Rows {
		tc, bug := "", ""
		if r.TestCaseID > 0 {
			tc = fmt.Sprintf("%d", r.TestCaseID)
		}
		if r.BugID > 0 {
			bug = fmt.Sprintf("%d", r.BugID)
		}
		l3l4 := r.L3ID
		if r.L4ID != "" {
			l3l4 += "/" + r.L4ID
		}
		fmt.Fprintf(w, "%-14s %-30s %-8s %-24s %-16s %-4d %-4d %-4d %s %-8s %-10s\n",
			truncate(r.RequirementID, 14), truncate(r.RequirementTitle, 30), tc, truncate(r.TestCaseTitle, 24),
			r.Source, r.Passed, r.Failed, r.NotRun, formatRunStatus(r.RunStatus), bug, l3l4)
	}
	fmt.Fprintln(w, strings.Repeat("=", 130))
	fmt.Fprintln(w)
}

// renderValidationTable displays validation rows
func renderValidationTable(w io.Writer, p coverage.InternalValidationFlatPayload) {
	headerColor.Fprintln(w, strings.ToUpper(p.SheetName))
	headerColor.Fprintln(w, strings.Repeat("=", 130))
	if len(p.Rows) == 0 {
		warningColor.Fprintln(w, "No test cases in scope")
		return
	}
	for _, r := range p.Rows {
		fmt.Fprintf(w, "%-8d %-40s %s\n", r.TestCaseID, truncate(r.TestCaseTitle, 40), formatValidationStatus(r.ValidationStatus))
		for _, m := range r.MentionedNotLinked {
			fmt.Fprintf(w, "  mentioned, not linked: %s\n", m)
		}
		for _, l := range r.LinkedNotMentioned {
			fmt.Fprintf(w, "  linked, not mentioned: %s\n", l)
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 130))
}

// renderTableSummary displays an accepted external table
func renderTableSummary(w io.Writer, t *tables.Table) {
	printSection(w, "External Table")
	printField(w, "Source", t.Source)
	printField(w, "Kind", string(t.Kind))
	printField(w, "Header Row", t.HeaderRow)
	printField(w, "Required Columns", fmt.Sprintf("%d/%d", t.MatchedRequired, t.TotalRequired))
	printField(w, "Columns", strings.Join(t.Columns, ", "))
	printField(w, "Records", fmt.Sprintf("%d", len(t.Records)))
	printField(w, "Discarded", fmt.Sprintf("%d", t.Discarded))
	successColor.Fprintln(w, "  Table accepted")
}

// renderTableRejection displays why an external table was rejected
func renderTableRejection(w io.Writer, verr *tables.ValidationError) {
	printSection(w, "External Table")
	printField(w, "Source", verr.Source)
	printField(w, "Kind", string(verr.Kind))
	printField(w, "Reason", verr.Reason())
	if len(verr.Missing) > 0 {
		printField(w, "Best Header Row", verr.HeaderRow)
		printField(w, "Required Columns", fmt.Sprintf("%d/%d", verr.MatchedRequired, verr.TotalRequired))
		printField(w, "Missing", strings.Join(verr.Missing, ", "))
	}
	errorColor.Fprintln(w, "  Table rejected")
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len(title)))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

// formatRunStatus returns a colored, padded run status
func formatRunStatus(s core.RunStatus) string {
	padded := fmt.Sprintf("%-8s", s)
	switch s {
	case core.RunStatusPass:
		return color.New(color.FgGreen).Sprint(padded)
	case core.RunStatusFail:
		return color.New(color.FgRed).Sprint(padded)
	default:
		return color.New(color.FgYellow).Sprint(padded)
	}
}

// formatValidationStatus returns a colored validation status
func formatValidationStatus(s core.ValidationStatus) string {
	if s == core.ValidationPass {
		return color.New(color.FgGreen).Sprint(string(s))
	}
	return color.New(color.FgRed).Sprint(string(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
