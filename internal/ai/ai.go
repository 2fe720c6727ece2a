// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ai wraps the language model backends used for planning, query
// generation and summarization behind one small interface. The backend is
// chosen once, from configuration, when the Client is built.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// Client sends one system+user prompt and returns the model's text.
type Client interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrEmptyResponse is returned when the backend produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Option configures backend construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client for HTTP-based backends.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// New builds the backend named by cfg.Provider. It returns a nil Client and
// no error when the provider is "none" or empty.
func New(ctx context.Context, cfg types.AIConfig, opts ...Option) (Client, error) {
	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return newOpenAI("openai", cfg, o.httpClient), nil
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		return newOpenAI("ollama", cfg, o.httpClient), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return newGemini(ctx, cfg)
	case "anthropic", "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return &Anthropic{APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens, Client: o.httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q (want openai, ollama, gemini, anthropic or none)", cfg.Provider)
	}
}

// Close releases backend resources when the client holds any.
func Close(c Client) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
