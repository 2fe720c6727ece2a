// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/litflow/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const arxivPageSize = 100

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	UserAgent string
}

// Name returns the source identifier.
func (a *Arxiv) Name() string { return "arxiv" }

// Search pages with start/max_results until MaxResults entries are collected.
func (a *Arxiv) Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error) {
	from, to := yearWindow(q.Years)
	searchQuery := fmt.Sprintf("all:%s AND submittedDate:[%s TO %s]",
		q.Text, from.Format("200601021504"), to.Format("200601021504"))

	var records []types.Record
	for start := 0; len(records) < q.MaxResults; {
		pageSize := min(arxivPageSize, q.MaxResults-len(records))
		params := url.Values{
			"search_query": {searchQuery},
			"start":        {strconv.Itoa(start)},
			"max_results":  {strconv.Itoa(pageSize)},
			"sortBy":       {"relevance"},
			"sortOrder":    {"descending"},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if a.UserAgent != "" {
			req.Header.Set("User-Agent", a.UserAgent)
		}

		body, err := f.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("arXiv API request: %w", err)
		}

		var feed arxivFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			return nil, parseError("arXiv feed: %w", err)
		}

		for _, entry := range feed.Entries {
			if r, ok := entry.toRecord(); ok {
				records = append(records, r)
			}
		}
		start += len(feed.Entries)
		if len(feed.Entries) < pageSize || start >= feed.Total {
			break
		}
	}
	return records, nil
}

func (e arxivEntry) toRecord() (types.Record, bool) {
	arxivID := extractArxivID(e.ID)
	if arxivID == "" {
		return types.Record{}, false
	}
	r := types.Record{
		ID:       arxivID,
		Title:    strings.TrimSpace(e.Title),
		Abstract: strings.TrimSpace(e.Summary),
		Venue:    "arXiv",
		URL:      "https://arxiv.org/abs/" + arxivID,
		DOI:      strings.TrimSpace(e.DOI),
		Source:   "arxiv",
	}
	for _, au := range e.Authors {
		r.Authors = append(r.Authors, strings.TrimSpace(au.Name))
	}
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		r.Year = t.Year()
	}
	return r, true
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Total   int          `xml:"totalResults"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" becomes "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
