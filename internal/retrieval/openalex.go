// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

const openAlexPageSize = 200

// OpenAlex queries the OpenAlex Works API.
type OpenAlex struct {
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
}

// Name returns the source identifier.
func (o *OpenAlex) Name() string { return "openalex" }

// Search pages with page/per_page until MaxResults works are collected.
func (o *OpenAlex) Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error) {
	from, to := yearWindow(q.Years)
	perPage := min(openAlexPageSize, q.MaxResults)

	var records []types.Record
	for page := 1; len(records) < q.MaxResults; page++ {
		params := url.Values{
			"search":   {q.Text},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
			"filter": {"from_publication_date:" + from.Format("2006-01-02") +
				",to_publication_date:" + to.Format("2006-01-02")},
		}
		if o.Email != "" {
			params.Set("mailto", o.Email)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if o.UserAgent != "" {
			req.Header.Set("User-Agent", o.UserAgent)
		}

		body, err := f.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("OpenAlex API request: %w", err)
		}

		var oar openAlexResponse
		if err := json.Unmarshal(body, &oar); err != nil {
			return nil, parseError("OpenAlex JSON: %w", err)
		}

		for _, work := range oar.Results {
			records = append(records, work.toRecord())
		}
		if len(oar.Results) < perPage || page*perPage >= oar.Meta.Count {
			break
		}
	}
	return records, nil
}

func (w openAlexWork) toRecord() types.Record {
	r := types.Record{
		Title:    w.Title,
		Abstract: reconstructAbstract(w.AbstractInvertedIndex),
		Year:     w.PublicationYear,
		Venue:    w.PrimaryLocation.Source.DisplayName,
		Source:   "openalex",
	}
	for _, authorship := range w.Authorships {
		if authorship.Author.DisplayName != "" {
			r.Authors = append(r.Authors, authorship.Author.DisplayName)
		}
	}

	// OpenAlex is DOI-centric; strip the resolver prefix to get the bare DOI.
	if w.DOI != "" {
		r.DOI = strings.TrimPrefix(w.DOI, "https://doi.org/")
		r.ID = r.DOI
		r.URL = w.DOI
	} else {
		r.ID = w.ID
		r.URL = w.ID
	}
	return r
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The index maps each word to the positions where it appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}
