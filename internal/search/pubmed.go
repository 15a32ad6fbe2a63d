// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/reconcile-engine/internal/httputil"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// NCBI E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	pubmedSearchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedSummaryBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi"
)

const (
	pubmedMaxRetMax = 500
	pubmedIDPrefix  = "pmid:"
)

// PubMedProvider queries PubMed through NCBI E-utilities. It is the
// primary source: esearch pages through matching PMIDs and esummary
// resolves one page of them into records.
type PubMedProvider struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the provider identifier.
func (p *PubMedProvider) Name() string { return "pubmed" }

// Source reports the role records from this provider play.
func (p *PubMedProvider) Source() types.Source { return types.SourcePrimary }

// Search returns up to limit articles starting at offset.
func (p *PubMedProvider) Search(ctx context.Context, query Query, limit, offset int) (Page, error) {
	term := buildPubMedTerm(query)
	if term == "" {
		return Page{}, fmt.Errorf("empty PubMed query")
	}
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, pubmedMaxRetMax)

	params := url.Values{
		"db":       {"pubmed"},
		"term":     {term},
		"retmode":  {"json"},
		"retstart": {strconv.Itoa(max(offset, 0))},
		"retmax":   {strconv.Itoa(limit)},
	}
	if !query.DateFrom.IsZero() || !query.DateTo.IsZero() {
		minDate, maxDate := "1800/01/01", "3000/12/31"
		if !query.DateFrom.IsZero() {
			minDate = query.DateFrom.Format("2006/01/02")
		}
		if !query.DateTo.IsZero() {
			maxDate = query.DateTo.Format("2006/01/02")
		}
		params.Set("datetype", "pdat")
		params.Set("mindate", minDate)
		params.Set("maxdate", maxDate)
	}
	p.addKey(params)

	client := newClient(p.Client)
	header := userAgentHeader(p.UserAgent)

	var es pubmedSearchResponse
	if err := httputil.GetJSON(ctx, client, "PubMed", pubmedSearchBase+"?"+params.Encode(), header, &es); err != nil {
		return Page{}, err
	}
	total, err := strconv.Atoi(es.Result.Count)
	if err != nil && es.Result.Count != "" {
		return Page{}, fmt.Errorf("parsing PubMed count %q: %w", es.Result.Count, err)
	}
	if len(es.Result.IDList) == 0 {
		return Page{Total: total}, nil
	}

	summary := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(es.Result.IDList, ",")},
		"retmode": {"json"},
	}
	p.addKey(summary)

	var sum pubmedSummaryResponse
	if err := httputil.GetJSON(ctx, client, "PubMed", pubmedSummaryBase+"?"+summary.Encode(), header, &sum); err != nil {
		return Page{}, err
	}

	out := Page{Total: total, Records: make([]types.Record, 0, len(es.Result.IDList))}
	for _, id := range es.Result.IDList {
		raw, ok := sum.Result[id]
		if !ok {
			continue
		}
		var doc pubmedDocSum
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Page{}, fmt.Errorf("parsing PubMed summary %s: %w", id, err)
		}
		if doc.UID == "" {
			doc.UID = id
		}
		out.Records = append(out.Records, doc.record())
	}
	return out, nil
}

func (p *PubMedProvider) addKey(v url.Values) {
	if p.APIKey != "" {
		v.Set("api_key", p.APIKey)
	}
}

// buildPubMedTerm renders the query in PubMed search syntax, tagging the
// author field and ANDing the parts together.
func buildPubMedTerm(q Query) string {
	var parts []string
	if t := strings.TrimSpace(q.FreeText); t != "" {
		parts = append(parts, t)
	}
	if q.Author != "" {
		parts = append(parts, q.Author+"[Author]")
	}
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND ")
}

func (d pubmedDocSum) record() types.Record {
	r := types.Record{
		ID:      pubmedIDPrefix + d.UID,
		Title:   strings.TrimSpace(d.Title),
		Source:  types.SourcePrimary,
		Payload: map[string]any{"pmid": d.UID},
	}
	for _, a := range d.Authors {
		if a.Name != "" && (a.AuthType == "" || a.AuthType == "Author") {
			r.Authors = append(r.Authors, a.Name)
		}
	}
	if y, ok := pubmedYear(d.PubDate); ok {
		r.PublicationYear = types.YearPtr(y)
	}
	if d.PubDate != "" {
		r.Payload["publication_date"] = d.PubDate
	}
	if d.FullJournalName != "" {
		r.Payload["journal"] = d.FullJournalName
	}
	for _, aid := range d.ArticleIDs {
		switch aid.IDType {
		case "doi":
			r.Payload["doi"] = aid.Value
		case "pmc":
			r.Payload["pmcid"] = aid.Value
		}
	}
	if len(d.PubType) > 0 {
		r.Payload["publication_types"] = d.PubType
	}
	return r
}

// pubmedYear extracts the year from dates like "2021 Mar 15" or "2019".
func pubmedYear(pubDate string) (int, bool) {
	if len(pubDate) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(pubDate[:4])
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// E-utilities JSON structures.
type pubmedSearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedSummaryResponse struct {
	// Result maps each PMID to its document summary. It also carries a
	// "uids" array, which is skipped by looking up ids explicitly.
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedDocSum struct {
	UID             string            `json:"uid"`
	Title           string            `json:"title"`
	PubDate         string            `json:"pubdate"`
	FullJournalName string            `json:"fulljournalname"`
	Authors         []pubmedAuthor    `json:"authors"`
	ArticleIDs      []pubmedArticleID `json:"articleids"`
	PubType         []string          `json:"pubtype"`
}

type pubmedAuthor struct {
	Name     string `json:"name"`
	AuthType string `json:"authtype"`
}

type pubmedArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}
