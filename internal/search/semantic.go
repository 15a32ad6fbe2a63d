// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/reconcile-engine/internal/httputil"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const (
	semanticFields   = "title,abstract,authors,externalIds,year,publicationDate,venue,citationCount"
	semanticMaxLimit = 100
)

// SemanticScholarProvider queries the Semantic Scholar Graph API. It is the
// alternative secondary source, selected with secondary_backend.
type SemanticScholarProvider struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the provider identifier.
func (p *SemanticScholarProvider) Name() string { return "semantic_scholar" }

// Source reports the role records from this provider play.
func (p *SemanticScholarProvider) Source() types.Source { return types.SourceSecondary }

// Search returns up to limit papers starting at offset.
func (p *SemanticScholarProvider) Search(ctx context.Context, query Query, limit, offset int) (Page, error) {
	q := query.terms()
	if q == "" {
		return Page{}, fmt.Errorf("empty Semantic Scholar query")
	}
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, semanticMaxLimit)

	params := url.Values{
		"query":  {q},
		"offset": {fmt.Sprintf("%d", max(offset, 0))},
		"limit":  {fmt.Sprintf("%d", limit)},
		"fields": {semanticFields},
	}
	if yr := buildYearRange(query.DateFrom, query.DateTo); yr != "" {
		params.Set("year", yr)
	}

	header := userAgentHeader(p.UserAgent)
	if p.APIKey != "" {
		header.Set("x-api-key", p.APIKey)
	}

	var sr semanticResponse
	if err := httputil.GetJSON(ctx, newClient(p.Client), "Semantic Scholar", semanticAPIBase+"?"+params.Encode(), header, &sr); err != nil {
		return Page{}, err
	}

	out := Page{Total: sr.Total, Records: make([]types.Record, 0, len(sr.Data))}
	for _, paper := range sr.Data {
		out.Records = append(out.Records, paper.record())
	}
	return out, nil
}

func (s semanticPaper) record() types.Record {
	r := types.Record{
		ID:      s.PaperID,
		Title:   s.Title,
		Source:  types.SourceSecondary,
		Payload: map[string]any{"citation_count": s.CitationCount},
	}
	for _, a := range s.Authors {
		r.Authors = append(r.Authors, a.Name)
	}
	if s.Year > 0 {
		r.PublicationYear = types.YearPtr(s.Year)
	}
	if s.Abstract != "" {
		r.Payload["abstract"] = s.Abstract
	}
	if s.ExternalIDs.DOI != "" {
		r.Payload["doi"] = s.ExternalIDs.DOI
	}
	if s.ExternalIDs.PubMed != "" {
		r.Payload["pmid"] = s.ExternalIDs.PubMed
	}
	if s.ExternalIDs.ArXiv != "" {
		r.Payload["arxiv"] = s.ExternalIDs.ArXiv
	}
	if s.PublicationDate != "" {
		r.Payload["publication_date"] = s.PublicationDate
	}
	if s.Venue != "" {
		r.Payload["journal"] = s.Venue
	}
	return r
}

// buildYearRange returns a Semantic Scholar year filter string (e.g. "2020-2023").
func buildYearRange(from, to time.Time) string {
	switch {
	case !from.IsZero() && !to.IsZero():
		return fmt.Sprintf("%d-%d", from.Year(), to.Year())
	case !from.IsZero():
		return fmt.Sprintf("%d-", from.Year())
	case !to.IsZero():
		return fmt.Sprintf("-%d", to.Year())
	default:
		return ""
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Venue           string              `json:"venue"`
	CitationCount   int                 `json:"citationCount"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI    string `json:"DOI"`
	ArXiv  string `json:"ArXiv"`
	PubMed string `json:"PubMed"`
}
