// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

func withSemanticServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	old := semanticAPIBase
	semanticAPIBase = ts.URL
	t.Cleanup(func() {
		semanticAPIBase = old
		ts.Close()
	})
	return ts
}

func TestSemanticSearchRequestParams(t *testing.T) {
	var capturedReq *http.Request
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		fmt.Fprint(w, `{"total":0,"offset":0,"data":[]}`)
	})

	p := &SemanticScholarProvider{Client: ts.Client(), APIKey: "secret"}
	_, err := p.Search(context.Background(), Query{
		FreeText: "statins",
		DateFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}, 15, 45)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := capturedReq.URL.Query()
	if got := q.Get("query"); got != "statins" {
		t.Errorf("query param = %q, want %q", got, "statins")
	}
	if got := q.Get("limit"); got != "15" {
		t.Errorf("limit param = %q, want %q", got, "15")
	}
	if got := q.Get("offset"); got != "45" {
		t.Errorf("offset param = %q, want %q", got, "45")
	}
	if got := q.Get("year"); got != "2020-2023" {
		t.Errorf("year param = %q, want %q", got, "2020-2023")
	}
	fields := q.Get("fields")
	for _, f := range []string{"title", "authors", "externalIds", "year"} {
		if !strings.Contains(fields, f) {
			t.Errorf("fields param %q missing %q", fields, f)
		}
	}
	if got := capturedReq.Header.Get("x-api-key"); got != "secret" {
		t.Errorf("x-api-key = %q, want %q", got, "secret")
	}
}

func TestSemanticSearchLimitCapped(t *testing.T) {
	var limit string
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		limit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"total":0,"data":[]}`)
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	if _, err := p.Search(context.Background(), Query{FreeText: "x"}, 500, 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if limit != "100" {
		t.Errorf("limit = %q, want 100", limit)
	}
}

func TestSemanticSearchRecords(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"total": 812, "offset": 0, "data": [
			{"paperId": "abc123", "title": "Statins and dementia", "year": 2019,
			 "abstract": "We followed 4000 adults.", "venue": "BMJ", "citationCount": 12,
			 "authors": [{"authorId": "1", "name": "Ana Ruiz"}],
			 "externalIds": {"DOI": "10.1136/bmj.1", "PubMed": "31234567"}},
			{"paperId": "def456", "title": "Untitled", "year": null, "authors": [], "externalIds": {}}
		]}`)
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	page, err := p.Search(context.Background(), Query{FreeText: "statins"}, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 812 {
		t.Errorf("Total = %d, want 812", page.Total)
	}
	if len(page.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(page.Records))
	}

	r0 := page.Records[0]
	if r0.ID != "abc123" || r0.Source != types.SourceSecondary {
		t.Errorf("record = %s/%s, want abc123/secondary", r0.ID, r0.Source)
	}
	if y, ok := r0.Year(); !ok || y != 2019 {
		t.Errorf("Year = %d,%v, want 2019", y, ok)
	}
	if r0.Payload["doi"] != "10.1136/bmj.1" || r0.Payload["pmid"] != "31234567" {
		t.Errorf("payload ids = %v", r0.Payload)
	}
	if r0.Payload["journal"] != "BMJ" {
		t.Errorf("journal = %v, want BMJ", r0.Payload["journal"])
	}

	if r1 := page.Records[1]; r1.PublicationYear != nil {
		t.Errorf("PublicationYear = %v, want nil", *r1.PublicationYear)
	}
}

func TestSemanticSearchHTTPErrors(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	_, err := p.Search(context.Background(), Query{FreeText: "x"}, 10, 0)
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("err = %v, want HTTP 403", err)
	}
}

func TestSemanticSearchEmptyQuery(t *testing.T) {
	p := &SemanticScholarProvider{}
	if _, err := p.Search(context.Background(), Query{}, 10, 0); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestBuildYearRange(t *testing.T) {
	y2020 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	y2023 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		from, to time.Time
		want     string
	}{
		{"both", y2020, y2023, "2020-2023"},
		{"from only", y2020, time.Time{}, "2020-"},
		{"to only", time.Time{}, y2023, "-2023"},
		{"neither", time.Time{}, time.Time{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildYearRange(tt.from, tt.to); got != tt.want {
				t.Errorf("buildYearRange = %q, want %q", got, tt.want)
			}
		})
	}
}
