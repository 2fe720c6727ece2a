// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, _, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func TestBuildPubMedQuery(t *testing.T) {
	tests := []struct {
		name   string
		intent string
		want   string
	}{
		{"empty", "  ", ""},
		{"single term", "sepsis", "(sepsis[Title/Abstract])"},
		{"phrase is quoted", "septic shock", `("septic shock"[Title/Abstract])`},
		{"concepts and synonyms", "sepsis or septicemia; vasopressin",
			"((sepsis[Title/Abstract]) OR (septicemia[Title/Abstract])) AND (vasopressin[Title/Abstract])"},
		{"slash synonyms", "LNP/lipid nanoparticle",
			`((LNP[Title/Abstract]) OR ("lipid nanoparticle"[Title/Abstract]))`},
		{"word containing or is not split", "vector", "(vector[Title/Abstract])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPubMedQuery(tt.intent))
		})
	}
}

func TestRulesGenerate(t *testing.T) {
	q, err := Rules{}.Generate(context.Background(), "sepsis", "pubmed")
	require.NoError(t, err)
	assert.Equal(t, "(sepsis[Title/Abstract])", q)

	q, err = Rules{}.Generate(context.Background(), "graph neural networks", "arxiv")
	require.NoError(t, err)
	assert.Equal(t, "graph neural networks", q)

	_, err = Rules{}.Generate(context.Background(), "", "pubmed")
	assert.Error(t, err)
}

func TestRulesRewrite_Broadens(t *testing.T) {
	intent := "septic shock, vasopressin"
	previous := BuildPubMedQuery(intent)
	ctx := context.Background()

	q1, err := Rules{}.Rewrite(ctx, intent, previous, "pubmed", 1)
	require.NoError(t, err)
	assert.Equal(t, `("septic shock"[Title/Abstract]) OR (vasopressin[Title/Abstract])`, q1)

	q2, err := Rules{}.Rewrite(ctx, intent, previous, "pubmed", 2)
	require.NoError(t, err)
	assert.Equal(t, "septic OR shock OR vasopressin", q2)

	q3, err := Rules{}.Rewrite(ctx, intent, previous, "pubmed", 3)
	require.NoError(t, err)
	assert.Equal(t, intent, q3)

	_, err = Rules{}.Rewrite(ctx, intent, previous, "pubmed", 4)
	var re *RewriteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Attempt)
	assert.ErrorIs(t, err, ErrNoBroaderQuery)
}

func TestRulesRewrite_SkipsPrevious(t *testing.T) {
	q, err := Rules{}.Rewrite(context.Background(), "deep learning", "deep learning", "arxiv", 1)
	require.NoError(t, err)
	assert.Equal(t, "deep OR learning", q)

	_, err = Rules{}.Rewrite(context.Background(), "deep learning", "deep learning", "arxiv", 2)
	assert.Error(t, err)
}

func TestLLMGenerator_Generate(t *testing.T) {
	client := &fakeClient{replies: []string{"```\nQuery: (sepsis[tiab]) AND\n (adults[tiab])\n```"}}
	g := New(client, nil)

	q, err := g.Generate(context.Background(), "sepsis in adults", "pubmed")
	require.NoError(t, err)
	assert.Equal(t, "(sepsis[tiab]) AND (adults[tiab])", q)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Target database: pubmed")
	assert.Contains(t, client.prompts[0], "[Title/Abstract]")
}

func TestLLMGenerator_FallsBackToRules(t *testing.T) {
	g := New(&fakeClient{err: errors.New("quota")}, nil)
	q, err := g.Generate(context.Background(), "sepsis", "pubmed")
	require.NoError(t, err)
	assert.Equal(t, "(sepsis[Title/Abstract])", q)
}

func TestLLMGenerator_Rewrite(t *testing.T) {
	client := &fakeClient{replies: []string{"sepsis OR septicemia"}}
	g := New(client, nil)

	q, err := g.Rewrite(context.Background(), "sepsis", "(sepsis[Title/Abstract]) AND (rare[Title/Abstract])", "pubmed", 1)
	require.NoError(t, err)
	assert.Equal(t, "sepsis OR septicemia", q)
	assert.Contains(t, client.prompts[0], "previous query returned no results: (sepsis[Title/Abstract]) AND (rare[Title/Abstract])")
}

func TestLLMGenerator_RewriteSameQueryFallsBack(t *testing.T) {
	client := &fakeClient{replies: []string{"deep learning"}}
	g := &LLMGenerator{Client: client}

	_, err := g.Rewrite(context.Background(), "deep learning", "deep learning", "arxiv", 2)
	var re *RewriteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Attempt)
}

func TestNewWithoutClientUsesRules(t *testing.T) {
	_, ok := New(nil, nil).(Rules)
	assert.True(t, ok)
}

func TestCleanQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  sepsis  ", "sepsis"},
		{"```text\nsepsis AND shock\n```", "sepsis AND shock"},
		{"Search query: `a OR b`", "a OR b"},
		{"检索式：(a) AND (b)", "(a) AND (b)"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanQuery(tt.in), tt.in)
	}
}
