// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent workflow runs from the history ledger",
	Long: `History prints the most recent runs recorded in the SQLite ledger at
history.path: status, mode, record count and any error. Inputs are stored
as hashes only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.History.Path == "" {
			return fmt.Errorf("history is disabled: set history.path in litflow.yaml or LITFLOW_HISTORY_PATH")
		}
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		formatRuns(runs, os.Stdout)
		return nil
	},
}

func formatRuns(runs []history.Run, w io.Writer) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-6s  %-8s  %-7s  %-20s  %s\n",
		"Run", "Mode", "Status", "Records", "Started", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%-36s  %-6s  %-8s  %-7d  %-20s  %s\n",
			r.ID, r.Mode, r.Status, r.Count, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show")
	historyCmd.Flags().Bool("json", false, "output runs as JSON")

	rootCmd.AddCommand(historyCmd)
}
