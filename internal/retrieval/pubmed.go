// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/litflow/pkg/types"
)

// pubmedBase is the NCBI E-utilities root. Declared as a var so tests can
// substitute an httptest server.
var pubmedBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Page sizes for esearch and efetch. Tests shrink them to exercise paging.
var (
	pubmedPageSize  = 100
	pubmedFetchSize = 200
)

// PubMed searches PubMed through esearch (ids) and efetch (details).
type PubMed struct {
	Email     string
	APIKey    string
	UserAgent string
}

// Name returns the source identifier.
func (p *PubMed) Name() string { return "pubmed" }

// Search pages through esearch until MaxResults ids are collected, then
// fetches article details in batches.
func (p *PubMed) Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error) {
	ids, err := p.searchIDs(ctx, f, q)
	if err != nil {
		return nil, err
	}

	var records []types.Record
	for startIdx := 0; startIdx < len(ids); startIdx += pubmedFetchSize {
		end := min(startIdx+pubmedFetchSize, len(ids))
		batch, err := p.fetchDetails(ctx, f, ids[startIdx:end])
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func (p *PubMed) searchIDs(ctx context.Context, f Fetcher, q Query) ([]string, error) {
	from, to := yearWindow(q.Years)
	var ids []string
	for retstart := 0; len(ids) < q.MaxResults; {
		retmax := min(pubmedPageSize, q.MaxResults-len(ids))
		params := p.params()
		params.Set("db", "pubmed")
		params.Set("term", q.Text)
		params.Set("retmode", "json")
		params.Set("retstart", strconv.Itoa(retstart))
		params.Set("retmax", strconv.Itoa(retmax))
		params.Set("sort", "relevance")
		params.Set("datetype", "pdat")
		params.Set("mindate", from.Format("2006/01/02"))
		params.Set("maxdate", to.Format("2006/01/02"))

		body, err := p.get(ctx, f, pubmedBase+"/esearch.fcgi?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("esearch: %w", err)
		}

		var resp pubmedSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, parseError("esearch JSON: %w", err)
		}
		page := resp.Result.IDList
		ids = append(ids, page...)

		total, _ := strconv.Atoi(resp.Result.Count)
		retstart += len(page)
		if len(page) < retmax || retstart >= total {
			break
		}
	}
	if len(ids) > q.MaxResults {
		ids = ids[:q.MaxResults]
	}
	return ids, nil
}

func (p *PubMed) fetchDetails(ctx context.Context, f Fetcher, ids []string) ([]types.Record, error) {
	params := p.params()
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := p.get(ctx, f, pubmedBase+"/efetch.fcgi?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, parseError("efetch XML: %w", err)
	}

	records := make([]types.Record, 0, len(set.Articles))
	for _, a := range set.Articles {
		records = append(records, a.toRecord())
	}
	return records, nil
}

func (p *PubMed) params() url.Values {
	v := url.Values{}
	if p.Email != "" {
		v.Set("email", p.Email)
	}
	if p.APIKey != "" {
		v.Set("api_key", p.APIKey)
	}
	return v
}

func (p *PubMed) get(ctx context.Context, f Fetcher, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	return f.Fetch(ctx, req)
}

// E-utilities JSON and XML structures.
type pubmedSearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title   markup `xml:"ArticleTitle"`
			Journal struct {
				Title           string `xml:"Title"`
				ISOAbbreviation string `xml:"ISOAbbreviation"`
				PubDate         struct {
					Year        string `xml:"Year"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Abstract []struct {
				Label string `xml:"Label,attr"`
				Inner string `xml:",innerxml"`
			} `xml:"Abstract>AbstractText"`
			Authors []struct {
				LastName       string `xml:"LastName"`
				ForeName       string `xml:"ForeName"`
				CollectiveName string `xml:"CollectiveName"`
			} `xml:"AuthorList>Author"`
			ArticleDates []struct {
				Year string `xml:"Year"`
			} `xml:"ArticleDate"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	ArticleIDs []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

// markup captures inner XML so inline tags (<i>, <sup>) can be flattened.
type markup struct {
	Inner string `xml:",innerxml"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func (m markup) text() string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(m.Inner, "")))
}

func (a pubmedArticle) toRecord() types.Record {
	art := a.Citation.Article
	r := types.Record{
		ID:     strings.TrimSpace(a.Citation.PMID),
		Title:  art.Title.text(),
		Venue:  strings.TrimSpace(art.Journal.ISOAbbreviation),
		Source: "pubmed",
	}
	if r.Venue == "" {
		r.Venue = strings.TrimSpace(art.Journal.Title)
	}
	if r.ID != "" {
		r.URL = "https://pubmed.ncbi.nlm.nih.gov/" + r.ID + "/"
	}

	r.Year = parseYear(art.Journal.PubDate.Year)
	if r.Year == 0 {
		r.Year = parseYear(art.Journal.PubDate.MedlineDate)
	}
	for _, d := range art.ArticleDates {
		if r.Year != 0 {
			break
		}
		r.Year = parseYear(d.Year)
	}

	var parts []string
	for _, ab := range art.Abstract {
		text := markup{Inner: ab.Inner}.text()
		if text == "" {
			continue
		}
		if ab.Label != "" {
			text = ab.Label + ": " + text
		}
		parts = append(parts, text)
	}
	r.Abstract = strings.Join(parts, "\n")

	for _, au := range art.Authors {
		switch {
		case au.CollectiveName != "":
			r.Authors = append(r.Authors, au.CollectiveName)
		case au.LastName != "":
			r.Authors = append(r.Authors, strings.TrimSpace(au.ForeName+" "+au.LastName))
		}
	}

	for _, id := range a.ArticleIDs {
		if id.Type == "doi" {
			r.DOI = strings.TrimSpace(id.Value)
		}
	}
	return r
}

// parseYear reads a leading four-digit year ("2021", "2021 Jan-Feb").
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}
