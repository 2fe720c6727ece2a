// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"fmt"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// SourceNames lists the supported record sources.
var SourceNames = []string{"pubmed", "embase", "openalex", "semantic_scholar", "arxiv"}

// NewSource builds the source named by cfg.Source with its credentials.
func NewSource(cfg types.RetrievalConfig) (Source, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Source))
	switch name {
	case "", "pubmed":
		return &PubMed{Email: cfg.PubMedEmail, APIKey: cfg.PubMedAPIKey, UserAgent: cfg.UserAgent}, nil
	case "embase":
		if cfg.EmbaseAPIKey == "" {
			return nil, fmt.Errorf("embase requires an API key (retrieval.embase_api_key or .secrets/embase-api-key)")
		}
		return &Embase{APIKey: cfg.EmbaseAPIKey, InstToken: cfg.EmbaseInstToken, UserAgent: cfg.UserAgent}, nil
	case "openalex":
		return &OpenAlex{Email: cfg.OpenAlexEmail, UserAgent: cfg.UserAgent}, nil
	case "semantic_scholar", "semantic-scholar", "s2":
		return &SemanticScholar{APIKey: cfg.SemanticScholarAPIKey, UserAgent: cfg.UserAgent}, nil
	case "arxiv":
		return &Arxiv{UserAgent: cfg.UserAgent}, nil
	default:
		return nil, fmt.Errorf("unknown record source %q (want one of %s)", cfg.Source, strings.Join(SourceNames, ", "))
	}
}
