// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files
// and from a .env file. Each file in the directory represents one secret: the filename
// is the key name and the file contents (trimmed) are the value. .env keys are
// normalized to the same form, so OPENAI_API_KEY and openai-api-key are one secret.
//
// Supported keys: pubmed-api-key, pubmed-email, embase-api-key, embase-insttoken,
// semantic-scholar-api-key, openalex-email, ai-api-key, openai-api-key, gemini-api-key,
// anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/litflow/pkg/types"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[normalizeKey(name)] = value
		}
	}

	return secrets, nil
}

// LoadEnv reads KEY=VALUE pairs from a .env file without touching the
// process environment. A missing file is not an error.
func LoadEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[normalizeKey(k)] = v
		}
	}
	return out, nil
}

// Merge combines secret maps; later maps win.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Apply fills empty credential fields of cfg from secrets. Values already
// set by config files, flags or LITFLOW_ variables are kept.
func Apply(cfg *types.Config, secrets map[string]string) {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := secrets[k]; v != "" {
				*dst = v
				return
			}
		}
	}

	r := &cfg.Retrieval
	fill(&r.PubMedAPIKey, "pubmed-api-key", "ncbi-api-key")
	fill(&r.PubMedEmail, "pubmed-email", "ncbi-email")
	fill(&r.EmbaseAPIKey, "embase-api-key", "elsevier-api-key")
	fill(&r.EmbaseInstToken, "embase-insttoken", "elsevier-insttoken")
	fill(&r.SemanticScholarAPIKey, "semantic-scholar-api-key")
	fill(&r.OpenAlexEmail, "openalex-email")

	provider := strings.ToLower(cfg.AI.Provider)
	if provider == "claude" {
		provider = "anthropic"
	}
	fill(&cfg.AI.APIKey, "ai-api-key", provider+"-api-key")
}

// normalizeKey maps OPENAI_API_KEY and openai-api-key to the same key.
func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "_", "-")
}
