// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/litflow/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,venue,url"

var semanticPageSize = 100

// SemanticScholar queries the Semantic Scholar Graph API.
type SemanticScholar struct {
	APIKey    string
	UserAgent string
}

// Name returns the source identifier.
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Search pages with offset/limit until MaxResults papers are collected.
func (s *SemanticScholar) Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error) {
	from, to := yearWindow(q.Years)

	var records []types.Record
	for offset := 0; len(records) < q.MaxResults; {
		limit := min(semanticPageSize, q.MaxResults-len(records))
		params := url.Values{
			"query":  {q.Text},
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(limit)},
			"fields": {semanticFields},
			"year":   {fmt.Sprintf("%d-%d", from.Year(), to.Year())},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if s.UserAgent != "" {
			req.Header.Set("User-Agent", s.UserAgent)
		}
		if s.APIKey != "" {
			req.Header.Set("x-api-key", s.APIKey)
		}

		body, err := f.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
		}

		var sr semanticResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return nil, parseError("Semantic Scholar JSON: %w", err)
		}

		for _, paper := range sr.Data {
			records = append(records, paper.toRecord())
		}
		offset += len(sr.Data)
		if len(sr.Data) < limit || offset >= sr.Total {
			break
		}
	}
	return records, nil
}

func (p semanticPaper) toRecord() types.Record {
	r := types.Record{
		Title:    p.Title,
		Abstract: p.Abstract,
		Year:     p.Year,
		Venue:    p.Venue,
		URL:      p.URL,
		DOI:      p.ExternalIDs.DOI,
		Source:   "semantic_scholar",
	}
	for _, a := range p.Authors {
		r.Authors = append(r.Authors, a.Name)
	}

	// Prefer DOI, then arXiv ID, then the S2 paper id.
	switch {
	case p.ExternalIDs.DOI != "":
		r.ID = p.ExternalIDs.DOI
	case p.ExternalIDs.ArXiv != "":
		r.ID = p.ExternalIDs.ArXiv
	default:
		r.ID = p.PaperID
	}
	return r
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year"`
	Venue    string `json:"venue"`
	URL      string `json:"url"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
}
