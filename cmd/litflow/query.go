// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query <research question>",
	Short: "Print the search query generated for a research question",
	Long: `Query shows the query a search would send for a research question without
contacting the record source. With an AI backend configured the query is
written by the model; otherwise the built-in rules are used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("source") {
			cfg.Retrieval.Source, _ = cmd.Flags().GetString("source")
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return previewQuery(cmd.Context(), a.queries, strings.Join(args, " "), cfg.Retrieval.Source, os.Stdout)
	},
}

func previewQuery(ctx context.Context, g query.Generator, intent, source string, w io.Writer) error {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return fmt.Errorf("research question is empty")
	}
	q, err := g.Generate(ctx, intent, source)
	if err != nil {
		return fmt.Errorf("generating query: %w", err)
	}
	fmt.Fprintln(w, q)
	return nil
}

func init() {
	queryCmd.Flags().String("source", "", "record source the query is written for")

	rootCmd.AddCommand(queryCmd)
}
