// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for litflow: retrieved
// records, progress events, direction outcomes and workflow results.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Record is one literature item returned by a record source. A Record is
// immutable once fetched except for Annotation, which the summarization
// scheduler fills in place, and Direction, which the coordinator sets once
// before summarization starts.
type Record struct {
	// ID is the external identifier (PMID, DOI, arXiv ID). May be empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Title is the record title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Venue is the journal or conference name.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Year is the publication year; zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Abstract is the record abstract; summarization is skipped when empty.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Source identifies which record source found this record (e.g. "pubmed").
	Source string `json:"source" yaml:"source"`

	// Direction is the topic of the direction that found this record.
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`

	Annotation Annotation `json:"annotation" yaml:"annotation"`
}

// Annotation holds the summarization output for a record. Both fields are
// empty when summarization failed or was skipped.
type Annotation struct {
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Usage   string `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// IsEmpty reports whether no summarization output was recorded.
func (a Annotation) IsEmpty() bool {
	return a.Summary == "" && a.Usage == ""
}

// Key returns the record identity: the external identifier when present,
// otherwise a content hash of title, venue and year.
func (r Record) Key() string {
	if r.ID != "" {
		return "id:" + r.ID
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(r.Title))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(r.Venue))))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(r.Year)))
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}
