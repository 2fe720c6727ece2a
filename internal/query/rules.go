// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Rules builds queries without a language model.
type Rules struct{}

// Generate returns a PubMed field-tagged query for pubmed and the plain
// intent for other sources.
func (Rules) Generate(_ context.Context, intent, source string) (string, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return "", errors.New("intent is empty")
	}
	if source == "pubmed" {
		if q := BuildPubMedQuery(intent); q != "" {
			return q, nil
		}
	}
	return intent, nil
}

// Rewrite returns the attempt-th broadening of intent that differs from
// previous: any concept (OR), then any significant word, then plain text.
func (Rules) Rewrite(_ context.Context, intent, previous, source string, attempt int) (string, error) {
	var candidates []string
	seen := map[string]bool{strings.TrimSpace(previous): true, "": true}
	add := func(q string) {
		q = strings.TrimSpace(q)
		if !seen[q] {
			seen[q] = true
			candidates = append(candidates, q)
		}
	}

	if source == "pubmed" {
		add(strings.ReplaceAll(BuildPubMedQuery(intent), " AND ", " OR "))
	}
	add(strings.Join(significantWords(intent), " OR "))
	add(strings.TrimSpace(intent))

	if attempt < 1 || attempt > len(candidates) {
		return "", &RewriteError{Attempt: attempt, Err: ErrNoBroaderQuery}
	}
	return candidates[attempt-1], nil
}

var (
	segmentPattern = regexp.MustCompile(`[；;，。,.]+`)
	synonymPattern = regexp.MustCompile(`\s+(?:or|OR)\s+|\s*(?:或者|或|/|\|)\s*`)
)

// BuildPubMedQuery turns an intent into a field-tagged PubMed query.
// Punctuation separates concepts (AND); "or", "/" and "|" separate synonyms
// within a concept (OR); multi-word terms are quoted.
func BuildPubMedQuery(intent string) string {
	var groups []string
	for _, segment := range segmentPattern.Split(strings.TrimSpace(intent), -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		var terms []string
		for _, term := range synonymPattern.Split(segment, -1) {
			term = strings.Trim(strings.TrimSpace(term), `"“” `)
			if term == "" {
				continue
			}
			if strings.Contains(term, " ") {
				terms = append(terms, `("`+term+`"[Title/Abstract])`)
			} else {
				terms = append(terms, "("+term+"[Title/Abstract])")
			}
		}
		switch len(terms) {
		case 0:
		case 1:
			groups = append(groups, terms[0])
		default:
			groups = append(groups, "("+strings.Join(terms, " OR ")+")")
		}
	}
	return strings.Join(groups, " AND ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "of": true, "in": true, "on": true, "or": true, "a": true, "an": true,
}

func significantWords(intent string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(intent), func(r rune) bool {
		return !(r == '-' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		if len(w) > 2 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}
