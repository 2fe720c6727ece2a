// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval issues paginated search and fetch calls against an
// external record source and returns normalized, deduplicated records.
// Every outbound call goes through the shared httputil.Pool and is retried
// with exponential backoff on 429, 5xx, transport failures and timeouts.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/litflow/internal/httputil"
	"github.com/pdiddy/litflow/pkg/types"
)

const (
	defaultMaxResults = 10
	defaultYears      = 5
)

// Query holds the parameters of one search.
type Query struct {
	// Text is the source-specific query string.
	Text string

	// Years restricts results to the last N years; zero means 5.
	Years int

	// MaxResults caps the number of returned records; zero means 10.
	MaxResults int

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, reason Reason, delay time.Duration)
}

// Fetcher performs one logical GET with the client's retry policy.
// Sources call it once per page.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) ([]byte, error)
}

// Source is one bibliographic API. Each implementation paginates with the
// API's own parameters and maps its payload onto types.Record.
type Source interface {
	Name() string
	Search(ctx context.Context, f Fetcher, q Query) ([]types.Record, error)
}

// Observer receives per-attempt outcomes. The metrics package implements it.
type Observer interface {
	RetrievalAttempt(source, outcome string)
}

// Client runs searches against one Source through a shared permit pool.
type Client struct {
	source   Source
	http     *http.Client
	pool     *httputil.Pool
	policy   httputil.Policy
	logger   *slog.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for outbound calls.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

// WithObserver sets the attempt observer.
func WithObserver(o Observer) Option { return func(cl *Client) { cl.observer = o } }

// NewClient returns a Client for source. The pool is shared; pass the same
// *httputil.Pool to every Client that must respect one process-wide cap.
func NewClient(source Source, pool *httputil.Pool, cfg types.RetrievalConfig, opts ...Option) *Client {
	c := &Client{
		source: source,
		http:   http.DefaultClient,
		pool:   pool,
		policy: httputil.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BackoffBase,
			MaxDelay:    cfg.BackoffMax,
			Timeout:     cfg.Timeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the name of the underlying source.
func (c *Client) Source() string { return c.source.Name() }

// Search runs q against the source. Failures are returned as *Error.
func (c *Client) Search(ctx context.Context, q Query) ([]types.Record, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultMaxResults
	}
	if q.Years <= 0 {
		q.Years = defaultYears
	}

	start := time.Now()
	records, err := c.source.Search(ctx, &fetcher{client: c, onRetry: q.OnRetry}, q)
	if err != nil {
		rerr := classify(c.source.Name(), err)
		c.logger.Warn("retrieval failed",
			"source", c.source.Name(), "reason", rerr.Reason, "attempts", rerr.Attempts, "error", err)
		return nil, rerr
	}

	records = normalize(records, c.source.Name())
	if len(records) > q.MaxResults {
		records = records[:q.MaxResults]
	}
	c.logger.Debug("retrieval complete",
		"source", c.source.Name(), "records", len(records), "elapsed", time.Since(start))
	return records, nil
}

type fetcher struct {
	client  *Client
	onRetry func(attempt int, reason Reason, delay time.Duration)
}

func (f *fetcher) Fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	c := f.client
	policy := c.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		reason := leafReason(err)
		c.record(string(reason))
		c.logger.Debug("retrying request",
			"source", c.source.Name(), "attempt", attempt, "reason", reason, "delay", delay)
		if f.onRetry != nil {
			f.onRetry(attempt, reason, delay)
		}
	}
	body, err := httputil.Fetch(ctx, c.http, c.pool, req, policy)
	switch {
	case err == nil:
		c.record("ok")
	case httputil.Retryable(err):
		c.record(string(leafReason(err)))
	default:
		c.record("failed")
	}
	return body, err
}

func (c *Client) record(outcome string) {
	if c.observer != nil {
		c.observer.RetrievalAttempt(c.source.Name(), outcome)
	}
}

// normalize trims text fields, stamps the source, and drops duplicates by
// identity or normalized title, keeping the first occurrence.
func normalize(records []types.Record, source string) []types.Record {
	seen := make(map[string]int)
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		r.Title = strings.Join(strings.Fields(r.Title), " ")
		r.Abstract = strings.TrimSpace(r.Abstract)
		r.Venue = strings.TrimSpace(r.Venue)
		if r.Source == "" {
			r.Source = source
		}
		if r.Title == "" && r.ID == "" {
			continue
		}

		key := r.Key()
		titleKey := "title:" + normalizeTitle(r.Title)
		if idx, ok := seen[key]; ok {
			mergeInto(&out[idx], r)
			continue
		}
		if titleKey != "title:" {
			if idx, ok := seen[titleKey]; ok {
				mergeInto(&out[idx], r)
				continue
			}
		}

		idx := len(out)
		out = append(out, r)
		seen[key] = idx
		if titleKey != "title:" {
			seen[titleKey] = idx
		}
	}
	return out
}

// mergeInto fills empty fields of dst from src.
func mergeInto(dst *types.Record, src types.Record) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.Abstract == "" {
		dst.Abstract = src.Abstract
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// yearWindow returns the start and end of the last N years.
func yearWindow(years int) (from, to time.Time) {
	to = now()
	return to.AddDate(-years, 0, 0), to
}

// now is replaced in tests.
var now = time.Now
