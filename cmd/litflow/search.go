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

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run one query against the configured record source",
	Long: `Search sends a single query to the configured source (PubMed by default),
retrying transient failures and rewriting the query when nothing is found.
With an AI backend configured each record is summarized.

Pass --text instead of a query to have the query generated from a research
question.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := workflow.Request{
			Mode:  types.ModeSingle,
			Query: strings.TrimSpace(strings.Join(args, " ")),
		}
		req.Text, _ = cmd.Flags().GetString("text")
		if req.Query == "" && strings.TrimSpace(req.Text) == "" {
			return fmt.Errorf("provide a query or --text")
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

// addRunFlags registers the flags shared by search and workflow.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "record source: pubmed, embase, openalex, semantic_scholar or arxiv")
	cmd.Flags().Int("max-results", 0, "maximum records per direction")
	cmd.Flags().Int("years", 0, "publication window in years")
	addOutputFlags(cmd)
}

// applyRunFlags copies explicitly set flags into req and the global config.
func applyRunFlags(cmd *cobra.Command, req *workflow.Request) error {
	flags := cmd.Flags()
	format, _ := flags.GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	if flags.Changed("source") {
		cfg.Retrieval.Source, _ = flags.GetString("source")
	}
	if flags.Changed("max-results") {
		n, _ := flags.GetInt("max-results")
		if n <= 0 {
			return fmt.Errorf("--max-results must be positive")
		}
		req.MaxResults = n
	}
	if flags.Changed("years") {
		n, _ := flags.GetInt("years")
		if n <= 0 {
			return fmt.Errorf("--years must be positive")
		}
		req.Years = n
	}
	return nil
}

func init() {
	searchCmd.Flags().String("text", "", "research question to generate the query from")
	addRunFlags(searchCmd)

	rootCmd.AddCommand(searchCmd)
}
