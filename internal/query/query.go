// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a research intent into a source-specific search
// query and broadens queries that returned nothing.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pdiddy/litflow/internal/ai"
)

// Generator builds and rewrites queries. Rewrite is called after previous
// returned zero records; attempt starts at 1.
type Generator interface {
	Generate(ctx context.Context, intent, source string) (string, error)
	Rewrite(ctx context.Context, intent, previous, source string, attempt int) (string, error)
}

// RewriteError is a failed zero-result rewrite. It ends the rewrite loop
// for one direction and is never a direction failure.
type RewriteError struct {
	Attempt int
	Err     error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite #%d: %v", e.Attempt, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

// ErrNoBroaderQuery is returned when no new query can be derived.
var ErrNoBroaderQuery = errors.New("no broader query available")

// New returns an LLM-backed generator with rule fallback, or the rule
// generator alone when client is nil.
func New(client ai.Client, logger *slog.Logger) Generator {
	if client == nil {
		return Rules{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMGenerator{Client: client, Fallback: Rules{}, Logger: logger}
}

// LLMGenerator asks a language model for queries and falls back to rules
// when the model fails or returns nothing usable.
type LLMGenerator struct {
	Client   ai.Client
	Fallback Generator
	Logger   *slog.Logger
}

const systemPrompt = "You write precise literature database search queries. Reply with the query only."

// Generate returns a query for intent in the syntax of source.
func (g *LLMGenerator) Generate(ctx context.Context, intent, source string) (string, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return "", errors.New("intent is empty")
	}
	prompt := fmt.Sprintf("User need: %s\nTarget database: %s\nFormat: %s\nReturn the final query directly.",
		intent, source, syntaxHint(source))

	raw, err := g.Client.Complete(ctx, systemPrompt, prompt)
	if q := CleanQuery(raw); err == nil && q != "" {
		return q, nil
	}
	if g.Fallback == nil {
		if err == nil {
			err = ai.ErrEmptyResponse
		}
		return "", fmt.Errorf("generating query: %w", err)
	}
	g.Logger.Debug("query generation fell back to rules", "source", source, "error", err)
	return g.Fallback.Generate(ctx, intent, source)
}

// Rewrite asks for a broader query than previous.
func (g *LLMGenerator) Rewrite(ctx context.Context, intent, previous, source string, attempt int) (string, error) {
	prompt := fmt.Sprintf("User need: %s\nTarget database: %s\nFormat: %s\n"+
		"The previous query returned no results: %s\n"+
		"Write a broader query with fewer constraints. Return the final query directly.",
		intent, source, syntaxHint(source), previous)

	raw, err := g.Client.Complete(ctx, systemPrompt, prompt)
	q := CleanQuery(raw)
	if err == nil && q != "" && q != previous {
		return q, nil
	}
	if g.Fallback != nil {
		return g.Fallback.Rewrite(ctx, intent, previous, source, attempt)
	}
	if err == nil {
		err = ErrNoBroaderQuery
	}
	return "", &RewriteError{Attempt: attempt, Err: err}
}

func syntaxHint(source string) string {
	if source == "pubmed" {
		return "PubMed syntax: join concepts with AND, synonyms with OR, quote phrases, " +
			"and use the [Title/Abstract] field tag. No explanation."
	}
	return "a query suited to the selected database. No explanation."
}

var (
	fencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	labelPattern  = regexp.MustCompile(`(?i)^(query|search query|search string|检索式)\s*[:：]\s*`)
	spacesPattern = regexp.MustCompile(`\s+`)
)

// CleanQuery strips fences, labels and surrounding quotes from model output
// and collapses it onto one line.
func CleanQuery(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = labelPattern.ReplaceAllString(strings.TrimSpace(s), "")
	s = spacesPattern.ReplaceAllString(s, " ")
	return strings.Trim(strings.TrimSpace(s), "`'")
}
