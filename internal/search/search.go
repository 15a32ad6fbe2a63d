// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the literature indexes and returns records in the
// shared data model. Each index is a Provider; SearchAll fans one query out
// to several providers at once.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Provider searches a single index. Search returns up to limit records
// starting at offset, along with the total the index reports for the query.
type Provider interface {
	Name() string
	Source() types.Source
	Search(ctx context.Context, query Query, limit, offset int) (Page, error)
}

// Page is one slice of a provider's result list.
type Page struct {
	Records []types.Record
	// Total is the match count reported by the index; zero when unknown.
	Total int
}

// Query holds the search parameters.
type Query struct {
	FreeText string
	Author   string
	Keywords []string
	DateFrom time.Time
	DateTo   time.Time
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.FreeText) == "" && q.Author == "" && len(q.Keywords) == 0
}

// Dates returns the query's publication date window.
func (q Query) Dates() types.DateRange {
	return types.DateRange{From: q.DateFrom, To: q.DateTo}
}

// String renders the query as the text recorded in snapshot provenance.
func (q Query) String() string {
	parts := make([]string, 0, 3)
	if q.FreeText != "" {
		parts = append(parts, q.FreeText)
	}
	if q.Author != "" {
		parts = append(parts, "author:"+q.Author)
	}
	if len(q.Keywords) > 0 {
		parts = append(parts, "keywords:"+strings.Join(q.Keywords, ","))
	}
	return strings.Join(parts, " ")
}

// ParseDateRange parses the --from/--to values. Each accepts YYYY,
// YYYY-MM or YYYY-MM-DD; a partial "to" date extends to the end of its
// year or month. Empty values leave that side open.
func ParseDateRange(from, to string) (time.Time, time.Time, error) {
	start, err := parseDate(from, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(to, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, apperr.NewValidation("search", "date range ends (%s) before it starts (%s)", to, from)
	}
	return start, end, nil
}

func parseDate(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	layouts := []struct {
		layout string
		extend func(time.Time) time.Time
	}{
		{"2006-01-02", func(t time.Time) time.Time { return t }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, -1) }},
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, -1) }},
	}
	for _, l := range layouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if end {
			t = l.extend(t)
		}
		return t, nil
	}
	return time.Time{}, apperr.NewValidation("search", "invalid date %q: use YYYY, YYYY-MM, or YYYY-MM-DD", s)
}

// terms joins the query fields into one free text string for indexes
// without fielded search.
func (q Query) terms() string {
	parts := make([]string, 0, 2+len(q.Keywords))
	if q.FreeText != "" {
		parts = append(parts, q.FreeText)
	}
	if q.Author != "" {
		parts = append(parts, q.Author)
	}
	parts = append(parts, q.Keywords...)
	return strings.Join(parts, " ")
}

// Output holds the first page from each provider that answered.
type Output struct {
	Pages  map[types.Source]Page
	Errors []string
}

// SearchAll sends the query to every provider concurrently and collects
// their first pages. A failing provider is reported on w and in
// Output.Errors; the call fails only when every provider fails.
func SearchAll(ctx context.Context, query Query, providers []Provider, pageSize int, w io.Writer) (Output, error) {
	if query.IsEmpty() {
		return Output{}, apperr.NewValidation("search", "query is empty: provide search text, an author, or keywords")
	}
	if len(providers) == 0 {
		return Output{}, apperr.NewValidation("search", "no search providers configured")
	}

	var (
		mu   sync.Mutex
		out  = Output{Pages: make(map[types.Source]Page, len(providers))}
		errs []error
		g    errgroup.Group
	)
	for _, p := range providers {
		g.Go(func() error {
			page, err := p.Search(ctx, query, pageSize, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", p.Name(), err))
				errs = append(errs, apperr.NewRetrieval("search", string(p.Source()), err))
				fmt.Fprintf(w, "warning: provider %s failed: %v\n", p.Name(), err)
				return nil
			}
			out.Pages[p.Source()] = page
			return nil
		})
	}
	_ = g.Wait()

	if len(out.Pages) == 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func newClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}

func userAgentHeader(ua string) http.Header {
	h := http.Header{}
	if ua != "" {
		h.Set("User-Agent", ua)
	}
	return h
}

// TableOptions controls what FormatTable renders next to each record.
type TableOptions struct {
	// Duplicates marks secondary records that duplicate a primary one.
	Duplicates map[string]types.DuplicateAnnotation
	// Columns adds one cell per enrichment column.
	Columns []types.EnrichmentColumn
	// Total is the number of records behind the rendered slice.
	Total int
}

// FormatTable writes records as a human-readable table to w.
func FormatTable(w io.Writer, records []types.Record, opts TableOptions) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-52s  %-20s  %-4s  %-9s  %-4s", "#", "Title", "Authors", "Year", "Source", "Dup")
	for _, c := range opts.Columns {
		fmt.Fprintf(w, "  %-14s", truncate(c.Label, 14))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 106+16*len(opts.Columns)))

	dups := 0
	for i, r := range records {
		year := ""
		if y, ok := r.Year(); ok {
			year = fmt.Sprintf("%d", y)
		}
		dup := ""
		if a, ok := opts.Duplicates[r.ID]; ok && a.IsDuplicate {
			dup = "yes"
			dups++
		}
		fmt.Fprintf(w, "%-4d  %-52s  %-20s  %-4s  %-9s  %-4s",
			i+1, truncate(r.Title, 52), formatAuthors(r.Authors), year, r.Source, dup)
		for _, c := range opts.Columns {
			cell := ""
			if v, ok := c.Values[r.ID]; ok {
				cell = v.String()
			}
			fmt.Fprintf(w, "  %-14s", truncate(cell, 14))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\n%d records", len(records))
	if opts.Total > len(records) {
		fmt.Fprintf(w, " shown of %d", opts.Total)
	}
	if dups > 0 {
		fmt.Fprintf(w, " (%d flagged as duplicates)", dups)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes records as indented JSON to w.
func FormatJSON(w io.Writer, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
