// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/workflow"
	"github.com/pdiddy/litflow/pkg/types"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow [research question]",
	Short: "Split a research question into directions and search them concurrently",
	Long: `Workflow asks the AI backend to split a research question into search
directions (up to 12), generates a query for each, and runs the directions
concurrently against the record source. One failing direction does not stop
the others; the combined result lists every record with the direction that
found it.

Use --tui for a live view grouped by direction. Press q to abort; records
found so far are still reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := workflow.Request{
			Mode: types.ModeMulti,
			Text: strings.TrimSpace(strings.Join(args, " ")),
		}
		if cmd.Flags().Changed("directions") {
			n, _ := cmd.Flags().GetInt("directions")
			if n < 1 {
				return fmt.Errorf("--directions must be at least 1")
			}
			req.DirectionCount = n
		}
		if err := applyRunFlags(cmd, &req); err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return execute(cmd.Context(), a, req, outputOptions(cmd), os.Stdout, os.Stderr)
	},
}

func init() {
	workflowCmd.Flags().Int("directions", 0, "number of search directions (default: let the planner decide)")
	addRunFlags(workflowCmd)

	rootCmd.AddCommand(workflowCmd)
}
