// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/server"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the configured AI backend",
	Long: `Models asks the configured AI backend (openai, ollama, anthropic or gemini)
for the models it serves. Use one of them as ai.model.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		asJSON, _ := cmd.Flags().GetBool("json")
		return listModels(cmd.Context(), a, asJSON, os.Stdout)
	},
}

func listModels(ctx context.Context, m server.ModelLister, asJSON bool, w io.Writer) error {
	models, err := m.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}
	if len(models) == 0 {
		fmt.Fprintln(w, "No models reported.")
		return nil
	}
	for _, id := range models {
		fmt.Fprintln(w, id)
	}
	return nil
}

func init() {
	modelsCmd.Flags().Bool("json", false, "print the list as JSON")

	rootCmd.AddCommand(modelsCmd)
}
