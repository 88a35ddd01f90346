// Command odoograph serves and prints projected Odoo records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "odoograph",
		Short:         "Project Odoo record graphs into nested JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "odoograph.yaml", "path to the YAML config file")
	root.AddCommand(newServeCmd(), newProjectCmd(), newSchemaCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
