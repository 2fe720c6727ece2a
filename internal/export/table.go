// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// FormatTable writes the records of result as a human-readable table,
// followed by the per-direction breakdown for multi-direction runs.
func FormatTable(result *types.WorkflowResult, w io.Writer) {
	if len(result.Records) == 0 {
		fmt.Fprintln(w, "No results found.")
	} else {
		fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %s\n", "Rank", "Title", "Authors", "Year", "Venue")
		fmt.Fprintln(w, strings.Repeat("-", 110))
		for i, r := range result.Records {
			year := ""
			if r.Year > 0 {
				year = fmt.Sprintf("%d", r.Year)
			}
			fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %s\n",
				i+1, truncate(r.Title, 60), formatAuthors(r.Authors), year, truncate(r.Venue, 30))
			if r.Annotation.Summary != "" {
				fmt.Fprintf(w, "      %s\n", truncate(r.Annotation.Summary, 104))
			}
		}
	}

	if len(result.Directions) > 1 {
		fmt.Fprintln(w)
		for _, d := range result.Directions {
			line := fmt.Sprintf("  [%s] %s: %d records", d.Status, d.Topic, d.Count)
			if d.Rewrites > 0 {
				line += fmt.Sprintf(", %d rewrites", d.Rewrites)
			}
			if d.Error != "" {
				line += " (" + d.Error + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintf(w, "\n%s\n", result.Message)
}

// FormatJSON writes result as indented JSON.
func FormatJSON(result *types.WorkflowResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
