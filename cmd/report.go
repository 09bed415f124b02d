package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"reqtrace/bootstrap"
	"reqtrace/core"
	"reqtrace/service"
)

// Sheet selections
const (
	sheetAll        = "all"
	sheetCoverage   = "coverage"
	sheetValidation = "validation"
)

// newReportCmd creates the 'report' subcommand
func newReportCmd() *cobra.Command {
	var (
		planID            int
		suiteIDs          []int
		requirementsQuery string
		bugsTable         string
		l3l4Table         string
		output            string
		sheet             string
		records           bool
		failOnDiscrepancy bool
		showProgress      bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the coverage and validation sheets of a test plan",
		Long: `Generate the requirement coverage matrix and the internal validation sheet
for a test plan, optionally restricted to suites and their descendants.`,
		Example: `  reqtrace report --plan 42
  reqtrace report --plan 42 --suite 7 --bugs s3://qa-reports/bugs.xlsx --output json
  reqtrace report --plan 42 --snapshot plan42.yaml --sheet validation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			switch sheet {
			case sheetAll, sheetCoverage, sheetValidation:
			default:
				return fmt.Errorf("unknown sheet %q: use all, coverage or validation", sheet)
			}

			app, err := newApp()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			var s *spinner.Spinner
			if showProgress && output == outputTable && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = fmt.Sprintf(" Building report for plan %d...", planID)
				s.Start()
			}

			report, err := app.Reports.Generate(ctx, service.Request{
				PlanID:            planID,
				SuiteIDs:          suiteIDs,
				RequirementsQuery: requirementsQuery,
				BugsTable:         bugsTable,
				L3L4Table:         l3l4Table,
			})

			if s != nil {
				s.Stop()
			}
			if err != nil {
				return fmt.Errorf("%s", bootstrap.ClassifyBackendError(err, app.Config.Backend.BaseURL))
			}

			if err := writeReport(cmd, report, output, sheet, records); err != nil {
				return err
			}

			if failOnDiscrepancy && failedValidations(report) > 0 {
				return ErrDiscrepancies
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&planID, "plan", 0, "Test plan id")
	cmd.Flags().IntSliceVar(&suiteIDs, "suite", nil, "Restrict to these suites and their descendants")
	cmd.Flags().StringVar(&requirementsQuery, "query", "", "Override the requirements query")
	cmd.Flags().StringVar(&bugsTable, "bugs", "", "External bugs table (path, s3:// or gs://)")
	cmd.Flags().StringVar(&l3l4Table, "l3l4", "", "External L3/L4 table (path, s3:// or gs://)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	cmd.Flags().StringVar(&sheet, "sheet", sheetAll, "Sheet to print: all, coverage or validation")
	cmd.Flags().BoolVar(&records, "records", false, "Emit rows keyed by column label (json/yaml)")
	cmd.Flags().BoolVar(&failOnDiscrepancy, "fail-on-discrepancy", false, "Exit non-zero when any test case fails validation")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func writeReport(cmd *cobra.Command, report *service.Report, output, sheet string, records bool) error {
	w := cmd.OutOrStdout()
	if output == outputTable {
		if !quiet {
			renderSummary(w, report)
		}
		if sheet != sheetValidation {
			renderCoverageTable(w, report.Coverage)
		}
		if sheet != sheetCoverage {
			renderValidationTable(w, report.Validation)
		}
		return nil
	}

	var data interface{}
	switch sheet {
	case sheetCoverage:
		data = report.Coverage
		if records {
			data = coverageRecords(report)
		}
	case sheetValidation:
		data = report.Validation
		if records {
			data = validationRecords(report)
		}
	default:
		data = report
		if records {
			data = map[string]interface{}{
				"runId":       report.RunID,
				"generatedAt": report.GeneratedAt,
				"planId":      report.PlanID,
				"stats":       report.Stats,
				"coverage":    coverageRecords(report),
				"validation":  validationRecords(report),
			}
		}
	}
	return writeData(w, output, data)
}

func failedValidations(report *service.Report) int {
	n := 0
	for _, r := range report.Validation.Rows {
		if r.ValidationStatus == core.ValidationFail {
			n++
		}
	}
	return n
}
