// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// embaseSearchBase is the Elsevier Embase search endpoint. Declared as a
// var so tests can substitute an httptest server.
var embaseSearchBase = "https://api.elsevier.com/content/search/embase"

const embasePageSize = 25

// Embase searches Embase through the Elsevier API.
type Embase struct {
	APIKey    string
	InstToken string
	UserAgent string
}

// Name returns the source identifier.
func (e *Embase) Name() string { return "embase" }

// Search pages with start/count until MaxResults entries are collected.
func (e *Embase) Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error) {
	from, _ := yearWindow(q.Years)
	query := q.Text
	if q.Years > 0 {
		query = fmt.Sprintf("%s AND PUBYEAR > %d", q.Text, from.Year())
	}

	var records []types.Record
	for start := 0; len(records) < q.MaxResults; {
		count := min(embasePageSize, q.MaxResults-len(records))
		params := url.Values{
			"query": {query},
			"start": {strconv.Itoa(start)},
			"count": {strconv.Itoa(count)},
			"sort":  {"relevance"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, embaseSearchBase+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-ELS-APIKey", e.APIKey)
		if e.InstToken != "" {
			req.Header.Set("X-ELS-Insttoken", e.InstToken)
		}
		if e.UserAgent != "" {
			req.Header.Set("User-Agent", e.UserAgent)
		}

		body, err := f.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Embase search: %w", err)
		}

		var resp embaseResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, parseError("Embase JSON: %w", err)
		}

		page := 0
		for _, entry := range resp.Results.Entries {
			// An empty result set comes back as a single entry carrying "error".
			if entry.Error != "" {
				continue
			}
			records = append(records, entry.toRecord())
			page++
		}

		total, _ := strconv.Atoi(resp.Results.Total)
		start += len(resp.Results.Entries)
		if page < count || start >= total {
			break
		}
	}
	return records, nil
}

// Elsevier search JSON structures.
type embaseResponse struct {
	Results struct {
		Total   string        `json:"opensearch:totalResults"`
		Entries []embaseEntry `json:"entry"`
	} `json:"search-results"`
}

type embaseEntry struct {
	Error       string          `json:"error"`
	Identifier  string          `json:"dc:identifier"`
	EID         string          `json:"eid"`
	Title       string          `json:"dc:title"`
	Creator     json.RawMessage `json:"dc:creator"`
	Publication string          `json:"prism:publicationName"`
	CoverDate   string          `json:"prism:coverDate"`
	DOI         string          `json:"prism:doi"`
	Description string          `json:"dc:description"`
	URL         string          `json:"prism:url"`
}

func (e embaseEntry) toRecord() types.Record {
	r := types.Record{
		ID:       strings.TrimSpace(e.Identifier),
		Title:    e.Title,
		Authors:  creators(e.Creator),
		Venue:    e.Publication,
		Year:     parseYear(e.CoverDate),
		Abstract: e.Description,
		DOI:      strings.TrimSpace(e.DOI),
		URL:      e.URL,
		Source:   "embase",
	}
	if r.ID == "" {
		r.ID = strings.TrimSpace(e.EID)
	}
	return r
}

// creators decodes dc:creator, which is either a string or a list of
// {"$": name} objects.
func creators(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var names []string
	for _, item := range list {
		var obj struct {
			Value string `json:"$"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Value != "" {
			names = append(names, strings.TrimSpace(obj.Value))
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			names = append(names, strings.TrimSpace(s))
		}
	}
	return names
}
