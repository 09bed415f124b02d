package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reqtrace/bootstrap"
	"reqtrace/tables"
)

// newTablesCmd creates the 'tables' subcommand
func newTablesCmd() *cobra.Command {
	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect external bugs and L3/L4 tables",
	}
	tablesCmd.AddCommand(newTablesCheckCmd())
	return tablesCmd
}

// newTablesCheckCmd creates the 'tables check' subcommand
func newTablesCheckCmd() *cobra.Command {
	var (
		kind   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "check <ref>",
		Short: "Validate an external table without building a report",
		Long: `Load an external table from a local path, s3://bucket/key or gs://bucket/key
and check it against the layout of its kind. The header may sit on row 1 or row 3.`,
		Example: `  reqtrace tables check bugs.xlsx --kind bugs
  reqtrace tables check s3://qa-reports/l3l4.csv --kind l3l4 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			w := cmd.OutOrStdout()
			t, err := app.Reports.ValidateTable(ctx, args[0], tables.Kind(kind))
			if err != nil {
				var verr *tables.ValidationError
				if errors.As(err, &verr) {
					if output == outputTable {
						renderTableRejection(w, verr)
					} else if werr := writeData(w, output, verr); werr != nil {
						return werr
					}
				}
				return fmt.Errorf("%s", bootstrap.ClassifyBackendError(err, args[0]))
			}

			if output != outputTable {
				return writeData(w, output, t)
			}
			renderTableSummary(w, t)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(tables.KindBugs), "Table kind: bugs or l3l4")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")

	return cmd
}
