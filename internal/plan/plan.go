// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan decomposes a free-text research intent into search
// directions, one topic per line of model output.
package plan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/litflow/internal/ai"
)

// MaxDirections caps how many directions a run may fan out to.
const MaxDirections = 12

// Planner turns text into an ordered list of topics.
type Planner interface {
	Plan(ctx context.Context, text string, desired int) ([]string, error)
}

// Error is a planning failure. It is fatal to the run.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "planning: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// IsPlanningError reports whether err is a planning failure.
func IsPlanningError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

const systemPrompt = "You help researchers plan literature searches."

// LLMPlanner asks a language model for directions.
type LLMPlanner struct {
	Client ai.Client
}

// Plan returns at most desired topics (MaxDirections when desired is zero).
func (p *LLMPlanner) Plan(ctx context.Context, text string, desired int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &Error{Err: errors.New("no text to analyze")}
	}
	if p.Client == nil {
		return nil, &Error{Err: errors.New("no AI provider configured")}
	}
	desired = Clamp(desired)

	prompt := "Read the following text and list directions suitable for academic literature search, one per line, without numbering"
	if desired > 0 {
		prompt += fmt.Sprintf(" (at most %d)", desired)
	}
	prompt += ":\n" + text

	raw, err := p.Client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, &Error{Err: err}
	}
	topics := ParseLines(raw)
	if len(topics) == 0 {
		return nil, &Error{Err: errors.New("model returned no directions")}
	}
	limit := desired
	if limit == 0 {
		limit = MaxDirections
	}
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics, nil
}

// Clamp bounds a requested direction count to [0, MaxDirections].
func Clamp(desired int) int {
	switch {
	case desired < 0:
		return 0
	case desired > MaxDirections:
		return MaxDirections
	default:
		return desired
	}
}

var bulletPrefix = regexp.MustCompile(`^[\s\d.\-:：•、*)）(]+`)

// ParseLines splits model output into topics, dropping bullets, numbering
// and blank or duplicate lines.
func ParseLines(raw string) []string {
	var topics []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		topic := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		topic = strings.Trim(topic, `"'`)
		key := strings.ToLower(topic)
		if topic == "" || seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, topic)
	}
	return topics
}
