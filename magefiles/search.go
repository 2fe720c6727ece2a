//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Search runs a single query from $QUERY against the configured source.
func Search() error {
	mg.Deps(Build)
	query := os.Getenv("QUERY")
	if query == "" {
		return fmt.Errorf("set QUERY, e.g. QUERY='crispr base editing' mage search")
	}
	return sh.RunV(binPath, "search", query)
}

// Workflow runs a multi-direction workflow for the research question in $TEXT.
func Workflow() error {
	mg.Deps(Build)
	text := os.Getenv("TEXT")
	if text == "" {
		return fmt.Errorf("set TEXT, e.g. TEXT='gene therapy for sickle cell' mage workflow")
	}
	args := []string{"workflow", text}
	if n := os.Getenv("DIRECTIONS"); n != "" {
		args = append(args, "--directions", n)
	}
	return sh.RunV(binPath, args...)
}
