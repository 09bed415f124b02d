// Package cmd provides the reqtrace command-line interface.
package cmd

import (
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reqtrace/bootstrap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	configFile string
	logLevel   string
	jsonLogs   bool
	snapshot   string
	noColor    bool
	quiet      bool
)

// defaultTimeout bounds one CLI report or table check
const defaultTimeout = 10 * time.Minute

// ErrDiscrepancies is returned by report --fail-on-discrepancy when any test
// case fails validation.
var ErrDiscrepancies = errors.New("validation discrepancies found")

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reqtrace",
		Short:         "Reconcile requirement coverage against test plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `reqtrace reconciles the requirements of a project with the test cases of a
test plan: which requirement codes each test step mentions, which requirements
each test case is formally linked to, how the latest runs went, and which bugs
and L3/L4 sub-requirements attach to them.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: reqtrace.yaml in . or ./config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	root.PersistentFlags().StringVar(&snapshot, "snapshot", "", "Read upstream data from a recorded snapshot file")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	root.AddCommand(newReportCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newServeCmd())

	return root
}

func newApp() (*bootstrap.App, error) {
	return bootstrap.NewApp(configFile, bootstrap.Overrides{
		LogLevel: logLevel,
		JSONLogs: jsonLogs,
		Snapshot: snapshot,
	})
}
