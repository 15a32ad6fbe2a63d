// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

const samplePubMedSummary = `{
  "header": {"type": "esummary", "version": "0.3"},
  "result": {
    "uids": ["38000001", "38000002"],
    "38000001": {
      "uid": "38000001",
      "title": "Statin therapy in older adults: a randomized trial.",
      "pubdate": "2023 Nov 2",
      "fulljournalname": "The New England journal of medicine",
      "authors": [
        {"name": "Smith J", "authtype": "Author"},
        {"name": "Lee K", "authtype": "Author"},
        {"name": "STATIN Investigators", "authtype": "CollectiveName"}
      ],
      "articleids": [
        {"idtype": "pubmed", "value": "38000001"},
        {"idtype": "doi", "value": "10.1056/NEJMoa0001"}
      ],
      "pubtype": ["Randomized Controlled Trial"]
    },
    "38000002": {
      "uid": "38000002",
      "title": "Lipid lowering after 75.",
      "pubdate": "",
      "authors": [],
      "articleids": []
    }
  }
}`

type pubmedServer struct {
	search, summary *http.Request
}

func withPubMedServer(t *testing.T, searchBody, summaryBody string) *pubmedServer {
	t.Helper()
	ps := &pubmedServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch", func(w http.ResponseWriter, r *http.Request) {
		ps.search = r
		fmt.Fprint(w, searchBody)
	})
	mux.HandleFunc("/esummary", func(w http.ResponseWriter, r *http.Request) {
		ps.summary = r
		fmt.Fprint(w, summaryBody)
	})
	ts := httptest.NewServer(mux)

	oldSearch, oldSummary := pubmedSearchBase, pubmedSummaryBase
	pubmedSearchBase, pubmedSummaryBase = ts.URL+"/esearch", ts.URL+"/esummary"
	t.Cleanup(func() {
		pubmedSearchBase, pubmedSummaryBase = oldSearch, oldSummary
		ts.Close()
	})
	return ps
}

func TestPubMedProviderSearch(t *testing.T) {
	ps := withPubMedServer(t,
		`{"esearchresult": {"count": "1342", "retmax": "2", "retstart": "40", "idlist": ["38000001", "38000002"]}}`,
		samplePubMedSummary)

	p := &PubMedProvider{APIKey: "ncbi-key", UserAgent: "reconcile-test"}
	page, err := p.Search(context.Background(), Query{FreeText: "statins elderly"}, 2, 40)
	require.NoError(t, err)

	assert.Equal(t, 1342, page.Total)
	require.Len(t, page.Records, 2)

	r0 := page.Records[0]
	assert.Equal(t, "pmid:38000001", r0.ID)
	assert.Equal(t, types.SourcePrimary, r0.Source)
	assert.Equal(t, "Statin therapy in older adults: a randomized trial.", r0.Title)
	assert.Equal(t, []string{"Smith J", "Lee K"}, r0.Authors)
	y, ok := r0.Year()
	require.True(t, ok)
	assert.Equal(t, 2023, y)
	assert.Equal(t, "10.1056/NEJMoa0001", r0.Payload["doi"])
	assert.Equal(t, "38000001", r0.Payload["pmid"])
	assert.Equal(t, "The New England journal of medicine", r0.Payload["journal"])

	assert.Nil(t, page.Records[1].PublicationYear)

	sq := ps.search.URL.Query()
	assert.Equal(t, "pubmed", sq.Get("db"))
	assert.Equal(t, "statins elderly", sq.Get("term"))
	assert.Equal(t, "40", sq.Get("retstart"))
	assert.Equal(t, "2", sq.Get("retmax"))
	assert.Equal(t, "ncbi-key", sq.Get("api_key"))
	assert.Equal(t, "reconcile-test", ps.search.Header.Get("User-Agent"))
	assert.Equal(t, "38000001,38000002", ps.summary.URL.Query().Get("id"))
}

func TestPubMedProviderNoHitsSkipsSummary(t *testing.T) {
	ps := withPubMedServer(t, `{"esearchresult": {"count": "0", "idlist": []}}`, `{}`)

	p := &PubMedProvider{}
	page, err := p.Search(context.Background(), Query{FreeText: "nothing"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, 0, page.Total)
	assert.Nil(t, ps.summary)
}

func TestPubMedProviderDateWindow(t *testing.T) {
	ps := withPubMedServer(t, `{"esearchresult": {"count": "0", "idlist": []}}`, `{}`)

	p := &PubMedProvider{}
	_, err := p.Search(context.Background(), Query{
		FreeText: "statins",
		DateFrom: time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC),
	}, 10, 0)
	require.NoError(t, err)

	q := ps.search.URL.Query()
	assert.Equal(t, "pdat", q.Get("datetype"))
	assert.Equal(t, "2018/03/01", q.Get("mindate"))
	assert.Equal(t, "3000/12/31", q.Get("maxdate"))
}

func TestPubMedProviderMalformedCount(t *testing.T) {
	withPubMedServer(t, `{"esearchresult": {"count": "many", "idlist": []}}`, `{}`)

	p := &PubMedProvider{}
	_, err := p.Search(context.Background(), Query{FreeText: "x"}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing PubMed count")
}

func TestBuildPubMedTerm(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"free text", Query{FreeText: "statins"}, "statins"},
		{"author only", Query{Author: "Smith J"}, "Smith J[Author]"},
		{"combined", Query{FreeText: "statins", Author: "Smith J", Keywords: []string{"elderly"}},
			"(statins) AND (Smith J[Author]) AND (elderly)"},
		{"blank keywords skipped", Query{FreeText: "statins", Keywords: []string{" "}}, "statins"},
		{"empty", Query{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildPubMedTerm(tt.query))
		})
	}
}

func TestPubMedYear(t *testing.T) {
	y, ok := pubmedYear("2021 Mar 15")
	assert.True(t, ok)
	assert.Equal(t, 2021, y)

	_, ok = pubmedYear("")
	assert.False(t, ok)
	_, ok = pubmedYear("Spring")
	assert.False(t, ok)
}
