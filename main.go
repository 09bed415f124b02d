// Package main is the entry point for reqtrace.
package main

import (
	"errors"
	"fmt"
	"os"

	"reqtrace/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		if errors.Is(err, cmd.ErrDiscrepancies) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
