// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/reconcile-engine/internal/httputil"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// openAlexMaxPerPage is the largest per_page OpenAlex accepts.
const openAlexMaxPerPage = 200

// OpenAlexProvider queries the OpenAlex citation index, the default
// secondary source.
type OpenAlexProvider struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
}

// Name returns the provider identifier.
func (p *OpenAlexProvider) Name() string { return "openalex" }

// Source reports the role records from this provider play.
func (p *OpenAlexProvider) Source() types.Source { return types.SourceSecondary }

// Search returns up to limit works starting at offset. OpenAlex paginates
// by page number, so the window is served from at most two pages of size
// limit and sliced.
func (p *OpenAlexProvider) Search(ctx context.Context, query Query, limit, offset int) (Page, error) {
	text := query.terms()
	if text == "" {
		return Page{}, fmt.Errorf("empty OpenAlex query")
	}
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, openAlexMaxPerPage)
	if offset < 0 {
		offset = 0
	}

	page := offset/limit + 1
	skip := offset % limit

	var out Page
	for len(out.Records) < limit {
		oar, err := p.fetchPage(ctx, query, text, page, limit)
		if err != nil {
			return Page{}, err
		}
		out.Total = oar.Meta.Count

		results := oar.Results
		if skip > 0 {
			results = results[min(skip, len(results)):]
			skip = 0
		}
		for _, work := range results {
			if len(out.Records) == limit {
				break
			}
			out.Records = append(out.Records, work.record())
		}
		if len(oar.Results) < limit || page*limit >= oar.Meta.Count {
			break
		}
		page++
	}
	return out, nil
}

func (p *OpenAlexProvider) fetchPage(ctx context.Context, query Query, text string, page, perPage int) (openAlexResponse, error) {
	params := url.Values{
		"search":   {text},
		"per_page": {fmt.Sprintf("%d", perPage)},
		"page":     {fmt.Sprintf("%d", page)},
	}

	var filters []string
	if !query.DateFrom.IsZero() {
		filters = append(filters, "from_publication_date:"+query.DateFrom.Format("2006-01-02"))
	}
	if !query.DateTo.IsZero() {
		filters = append(filters, "to_publication_date:"+query.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	if p.Email != "" {
		params.Set("mailto", p.Email)
	}

	var oar openAlexResponse
	err := httputil.GetJSON(ctx, newClient(p.Client), "OpenAlex", openAlexSearchBase+"?"+params.Encode(), userAgentHeader(p.UserAgent), &oar)
	return oar, err
}

func (w openAlexWork) record() types.Record {
	r := types.Record{
		ID:     strings.TrimPrefix(w.ID, "https://openalex.org/"),
		Title:  w.Title,
		Source: types.SourceSecondary,
		Payload: map[string]any{
			"openalex_id":    w.ID,
			"cited_by_count": w.CitedByCount,
		},
	}
	for _, authorship := range w.Authorships {
		if authorship.Author.DisplayName != "" {
			r.Authors = append(r.Authors, authorship.Author.DisplayName)
		}
	}
	if w.PublicationYear > 0 {
		r.PublicationYear = types.YearPtr(w.PublicationYear)
	}
	if w.DOI != "" {
		r.Payload["doi"] = strings.TrimPrefix(w.DOI, "https://doi.org/")
	}
	if w.PublicationDate != "" {
		r.Payload["publication_date"] = w.PublicationDate
	}
	if abs := reconstructAbstract(w.AbstractInvertedIndex); abs != "" {
		r.Payload["abstract"] = abs
	}
	if w.PrimaryLocation.Source.DisplayName != "" {
		r.Payload["journal"] = w.PrimaryLocation.Source.DisplayName
	}
	if w.OpenAccess.OAURL != "" {
		r.Payload["open_access_url"] = w.OpenAccess.OAURL
	}
	return r
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The index maps each word to the positions it occupies.
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
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	Source struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}
