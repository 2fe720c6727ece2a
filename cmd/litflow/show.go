// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/export"
)

var showCmd = &cobra.Command{
	Use:   "show <result.yaml>",
	Short: "Print a saved workflow result",
	Long: `Show reloads a result file written with --output and prints it as a table,
JSON or CSL-YAML without contacting any API.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := export.ReadResultFile(args[0])
		if err != nil {
			return err
		}
		if rf.Result == nil {
			return fmt.Errorf("%s holds no result", args[0])
		}
		format, _ := cmd.Flags().GetString("format")
		return report(rf.Result, runOptions{format: format}, os.Stdout, os.Stderr)
	},
}

func init() {
	showCmd.Flags().String("format", "table", "output format: table, json or csl")

	rootCmd.AddCommand(showCmd)
}
