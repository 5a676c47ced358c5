// Command yprice is the CLI surface of spec §6.3: a thin `db` subcommand
// group that maps one-to-one onto Store admin operations. It is explicitly
// non-core — argument or DB errors exit non-zero, success exits 0, and
// nothing here participates in the price-resolution testable surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "yprice",
		Short: "Historical EVM price oracle maintenance CLI",
	}
	root.AddCommand(newDBCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "yprice:", err)
		os.Exit(1)
	}
}
