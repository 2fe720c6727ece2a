// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pdiddy/litflow/pkg/types"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini talks to the Google Generative AI API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

func newGemini(ctx context.Context, cfg types.AIConfig) (*Gemini, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultGeminiModel
	}
	return &Gemini{client: c, model: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string { return "gemini" }

// Complete generates content for one prompt.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(g.temperature)
	if g.maxTokens > 0 {
		m.SetMaxOutputTokens(int32(g.maxTokens))
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(firstText(resp))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ListModels returns the models that support content generation.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	it := g.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini list models: %w", err)
		}
		if len(m.SupportedGenerationMethods) > 0 && !slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		ids = append(ids, m.Name)
	}
	return ids, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error { return g.client.Close() }

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
