// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/pdiddy/litflow/internal/ai"
	"github.com/pdiddy/litflow/pkg/types"
)

// Input is what a provider sees of a record.
type Input struct {
	Title    string
	Venue    string
	Year     int
	Abstract string
}

// Provider produces an annotation for one record.
type Provider interface {
	Summarize(ctx context.Context, in Input) (types.Annotation, error)
}

// ErrNoAbstract is returned for records without an abstract.
var ErrNoAbstract = errors.New("record has no abstract")

const systemPrompt = `You are a literature review assistant. Convert the abstract into JSON of the form
{"summary":"a short summary","usage":"how this paper can be used in a paper or review"}.
Return strict JSON only, without Markdown or extra text.`

var userPromptTmpl = template.Must(template.New("summary").Parse(`Title: {{.Title}}
Venue: {{.Venue}}
Year: {{if .Year}}{{.Year}}{{end}}
Abstract: {{.Abstract}}
Return the JSON object; keep both values concise.`))

// LLMProvider summarizes through a language model client.
type LLMProvider struct {
	Client ai.Client
}

// Summarize renders the prompt, calls the model and parses its reply.
func (p *LLMProvider) Summarize(ctx context.Context, in Input) (types.Annotation, error) {
	if strings.TrimSpace(in.Abstract) == "" {
		return types.Annotation{}, ErrNoAbstract
	}
	var buf bytes.Buffer
	if err := userPromptTmpl.Execute(&buf, in); err != nil {
		return types.Annotation{}, fmt.Errorf("rendering prompt: %w", err)
	}
	raw, err := p.Client.Complete(ctx, systemPrompt, buf.String())
	if err != nil {
		return types.Annotation{}, err
	}
	ann := ParseAnnotation(raw)
	if ann.IsEmpty() {
		return types.Annotation{}, ai.ErrEmptyResponse
	}
	return ann, nil
}

var (
	fencePattern  = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseAnnotation extracts summary and usage from a model reply. It strips
// Markdown fences, looks for a JSON object and accepts both the
// summary/usage and summary_zh/usage_zh key pairs. A reply that is not JSON
// becomes the summary verbatim.
func ParseAnnotation(raw string) types.Annotation {
	text := strings.TrimSpace(raw)
	if text == "" {
		return types.Annotation{}
	}
	trimmed := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))

	candidates := []string{text, trimmed}
	if m := objectPattern.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}
	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err != nil {
			continue
		}
		return types.Annotation{
			Summary: firstString(obj, "summary", "summary_zh"),
			Usage:   firstString(obj, "usage", "usage_zh"),
		}
	}
	return types.Annotation{Summary: trimmed}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// NopProvider leaves every annotation empty.
type NopProvider struct{}

// Summarize always reports that summarization is disabled.
func (NopProvider) Summarize(context.Context, Input) (types.Annotation, error) {
	return types.Annotation{}, ErrDisabled
}

// ErrDisabled is returned by NopProvider.
var ErrDisabled = errors.New("summarization disabled")
