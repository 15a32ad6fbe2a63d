// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model of the reconciliation engine:
// records and their pagination cursors, duplicate annotations, enrichment
// columns, snapshots with provenance, and the engine configuration.
package types

import (
	"fmt"
	"strings"
)

// Source identifies which provider role a record came from.
type Source string

const (
	// SourcePrimary is the primary literature index.
	SourcePrimary Source = "primary"
	// SourceSecondary is the secondary citation index.
	SourceSecondary Source = "secondary"
)

// Sources lists every source in fetch order.
var Sources = []Source{SourcePrimary, SourceSecondary}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourcePrimary || s == SourceSecondary
}

// ParseSource converts a flag or config value into a Source.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("unknown source %q: want primary or secondary", s)
	}
	return src, nil
}

// Record is one bibliographic or trial entry. Records are immutable once
// fetched: annotations and enrichment values are kept alongside them,
// keyed by ID, and never merged into the record itself.
type Record struct {
	// ID is stable within its source (PMID, OpenAlex work ID, S2 paper ID).
	ID string `json:"id" yaml:"id"`

	// Title is the entry title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// PublicationYear is nil when the source did not report a year.
	PublicationYear *int `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`

	// Source is the provider role that returned the record.
	Source Source `json:"source" yaml:"source"`

	// Payload carries provider fields (abstract, doi, journal, ...) untouched.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Year returns the publication year and whether it is known.
func (r Record) Year() (int, bool) {
	if r.PublicationYear == nil {
		return 0, false
	}
	return *r.PublicationYear, true
}

// Field returns a payload field rendered as a string, or "" when absent.
func (r Record) Field(name string) string {
	v, ok := r.Payload[name]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}

// Clone returns a copy of r that shares no mutable state with it.
func (r Record) Clone() Record {
	out := r
	if r.Authors != nil {
		out.Authors = append([]string(nil), r.Authors...)
	}
	if r.PublicationYear != nil {
		y := *r.PublicationYear
		out.PublicationYear = &y
	}
	if r.Payload != nil {
		out.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// CloneRecords deep-copies a record list.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// RecordIDs returns the IDs of records in order.
func RecordIDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// YearPtr is a convenience for building records with a known year.
func YearPtr(y int) *int { return &y }

// PaginationCursor tracks how far one source has been paged for the
// active search. Returned never exceeds TotalAvailable and HasMore is
// true exactly when Returned < TotalAvailable.
type PaginationCursor struct {
	TotalAvailable int  `json:"total_available" yaml:"total_available"`
	Returned       int  `json:"returned" yaml:"returned"`
	HasMore        bool `json:"has_more" yaml:"has_more"`
}

// NewCursor builds a cursor that satisfies the cursor invariant. A source
// reporting fewer total results than it already returned is trusted on
// the returned count.
func NewCursor(totalAvailable, returned int) PaginationCursor {
	if returned < 0 {
		returned = 0
	}
	if totalAvailable < returned {
		totalAvailable = returned
	}
	return PaginationCursor{
		TotalAvailable: totalAvailable,
		Returned:       returned,
		HasMore:        returned < totalAvailable,
	}
}

// Remaining is the number of results the source still holds.
func (c PaginationCursor) Remaining() int {
	if n := c.TotalAvailable - c.Returned; n > 0 {
		return n
	}
	return 0
}

// Advance returns the cursor after n more records were received.
func (c PaginationCursor) Advance(n int) PaginationCursor {
	return NewCursor(c.TotalAvailable, c.Returned+n)
}

// Exhaust returns the cursor closed at its current position, used when a
// source returns an empty batch while still claiming more results.
func (c PaginationCursor) Exhaust() PaginationCursor {
	return NewCursor(c.Returned, c.Returned)
}
