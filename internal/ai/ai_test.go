// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litflow/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      types.AIConfig
		wantNil  bool
		wantName string
		wantErr  bool
	}{
		{name: "none", cfg: types.AIConfig{Provider: "none"}, wantNil: true},
		{name: "empty", cfg: types.AIConfig{}, wantNil: true},
		{name: "openai", cfg: types.AIConfig{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "openai without key", cfg: types.AIConfig{Provider: "openai"}, wantErr: true},
		{name: "ollama needs no key", cfg: types.AIConfig{Provider: "Ollama"}, wantName: "ollama"},
		{name: "gemini without key", cfg: types.AIConfig{Provider: "gemini"}, wantErr: true},
		{name: "anthropic", cfg: types.AIConfig{Provider: "anthropic", APIKey: "k"}, wantName: "anthropic"},
		{name: "unknown", cfg: types.AIConfig{Provider: "llama.cpp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.wantName, c.Name())
			assert.NoError(t, Close(c))
		})
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  hello  "},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	c, err := New(context.Background(), types.AIConfig{Provider: "openai", APIKey: "secret", BaseURL: ts.URL, Model: "m1"},
		WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "be brief", "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "say hi", got.Messages[1].Content)
}

func TestOpenAIComplete_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer ts.Close()

	c, err := New(context.Background(), types.AIConfig{Provider: "ollama", BaseURL: ts.URL}, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, 1024, req.MaxTokens)
		w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"tool_use"},{"type":"text","text":"part two"}]}`))
	}))
	defer ts.Close()

	old := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = old }()

	a := &Anthropic{APIKey: "k", Model: "claude", Client: ts.Client()}
	text, err := a.Complete(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
}

func TestAnthropicComplete_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer ts.Close()

	old := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = old }()

	_, err := (&Anthropic{APIKey: "k"}).Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type plainClient struct{}

func (plainClient) Name() string { return "plain" }

func (plainClient) Complete(context.Context, string, string) (string, error) { return "", nil }

func TestListModels_OpenAI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"},{"id":"gpt-4o"},{"id":"models/llama3"}]}`))
	}))
	defer ts.Close()

	c, err := New(context.Background(), types.AIConfig{Provider: "openai", APIKey: "k", BaseURL: ts.URL},
		WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	models, err := ListModels(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini", "llama3"}, models)
}

func TestListModels_Anthropic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"data":[{"id":"claude-b"},{"id":"claude-a"}]}`))
	}))
	defer ts.Close()

	old := anthropicModelsURL
	anthropicModelsURL = ts.URL
	defer func() { anthropicModelsURL = old }()

	models, err := ListModels(context.Background(), &Anthropic{APIKey: "k", Client: ts.Client()})
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-a", "claude-b"}, models)
}

func TestListModels_Errors(t *testing.T) {
	_, err := ListModels(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = ListModels(context.Background(), plainClient{})
	assert.ErrorIs(t, err, ErrListUnsupported)
}
