// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/internal/journal"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/internal/session"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// --- fakes ---

type listProvider struct {
	src     types.Source
	records []types.Record
}

func (p *listProvider) Name() string         { return string(p.src) }
func (p *listProvider) Source() types.Source { return p.src }

func (p *listProvider) Search(_ context.Context, _ search.Query, limit, offset int) (search.Page, error) {
	if offset >= len(p.records) {
		return search.Page{Total: len(p.records)}, nil
	}
	end := min(offset+limit, len(p.records))
	return search.Page{Records: types.CloneRecords(p.records[offset:end]), Total: len(p.records)}, nil
}

type echoEnricher struct{}

func (echoEnricher) Enrich(_ context.Context, req enrich.Request, progress func(int)) ([]types.EnrichmentResult, error) {
	out := make([]types.EnrichmentResult, len(req.Rows))
	for i, r := range req.Rows {
		out[i] = types.EnrichmentResult{ID: r.ID, Value: "value for " + r.ID}
		progress(i + 1)
	}
	return out, nil
}

type idFilter map[string]bool

func (f idFilter) Filter(_ context.Context, rows []types.Record, _ string, _ types.Strictness, progress func(int)) ([]types.FilterResult, error) {
	out := make([]types.FilterResult, len(rows))
	for i, r := range rows {
		out[i] = types.FilterResult{ID: r.ID, Passed: f[r.ID], Confidence: 1}
		if progress != nil {
			progress(i + 1)
		}
	}
	return out, nil
}

// --- fixture ---

type fixture struct {
	sh      *Shell
	out     *bytes.Buffer
	journal *journal.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	primary := &listProvider{src: types.SourcePrimary, records: []types.Record{
		{ID: "pmid:1", Title: "Statin therapy in older adults with diabetes", Authors: []string{"Smith J", "Lee K"}, PublicationYear: types.YearPtr(2020)},
		{ID: "pmid:2", Title: "Exercise and cardiovascular outcomes", Authors: []string{"Brown A"}, PublicationYear: types.YearPtr(2019)},
		{ID: "pmid:3", Title: "Dietary sodium reduction trial", Authors: []string{"Garcia M"}, PublicationYear: types.YearPtr(2018)},
	}}
	secondary := &listProvider{src: types.SourceSecondary, records: []types.Record{
		{ID: "W1", Title: "Statin therapy in older adults with diabetes", Authors: []string{"Smith J", "Lee K"}, PublicationYear: types.YearPtr(2020)},
		{ID: "W2", Title: "Glacier retreat in the southern Andes", Authors: []string{"Quispe R"}, PublicationYear: types.YearPtr(2015)},
	}}

	store := lineage.NewStore()
	j, err := journal.Open(types.JournalConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	store.SetObserver(j)

	sess, err := session.New(session.Options{
		Config:    types.SessionConfig{GlobalCap: 50, DisplayCap: 10, InitialPageSize: 10},
		Providers: []search.Provider{primary, secondary},
		Enricher:  enrich.New(echoEnricher{}, nil),
		Filterer:  idFilter{"pmid:1": true, "W1": true},
		Lineage:   store,
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	out := &bytes.Buffer{}
	sh, err := New(&Config{Session: sess, History: j, Out: out})
	require.NoError(t, err)
	return &fixture{sh: sh, out: out, journal: j}
}

// exec runs one line, fails the test on error, and returns its output.
func (f *fixture) exec(t *testing.T, line string) string {
	t.Helper()
	f.out.Reset()
	require.NoError(t, f.sh.Exec(context.Background(), line), "command %q", line)
	return f.out.String()
}

// --- tests ---

func TestNew_RequiresSession(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: ""},
		{line: "   "},
		{line: "show 5", want: []string{"show", "5"}},
		{line: `column add "Study design" 'What design is {{.Title}}?'`, want: []string{"column", "add", "Study design", "What design is {{.Title}}?"}},
		{line: `filter only\ RCTs`, want: []string{"filter", "only RCTs"}},
		{line: `accept ""`, want: []string{"accept", ""}},
		{line: `filter "age > 65" --strictness strict`, want: []string{"filter", "age > 65", "--strictness", "strict"}},
		{line: `search "unterminated`, wantErr: true},
		{line: `filter age > 65`, wantErr: true},
		{line: `search statins | head`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExec_UnknownAndBlank(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.sh.Exec(context.Background(), "   "))

	err := f.sh.Exec(context.Background(), "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestHelpAndExit(t *testing.T) {
	f := newFixture(t)

	out := f.exec(t, "help")
	for _, name := range []string{"search", "more", "filter", "accept", "undo", "column add", "snapshots", "compare", "history"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, f.exec(t, "?"), "Available Commands:")

	assert.ErrorIs(t, f.sh.Exec(context.Background(), "exit"), errExit)
	assert.ErrorIs(t, f.sh.Exec(context.Background(), "QUIT"), errExit)
}

func TestSearchShowsTable(t *testing.T) {
	f := newFixture(t)

	out := f.exec(t, "search statins")
	assert.Contains(t, out, "Snapshot #1: 5 records loaded, 5 matched")
	assert.Contains(t, out, "primary: 3 of 3")
	assert.Contains(t, out, "Statin therapy in older adults")
	assert.Contains(t, out, "5 records (1 flagged as duplicates)")
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t)

	err := f.sh.Exec(context.Background(), "search")
	assert.True(t, apperr.Is(err, apperr.Validation))

	err = f.sh.Exec(context.Background(), "search --from nonsense statins")
	assert.True(t, apperr.Is(err, apperr.Validation))

	err = f.sh.Exec(context.Background(), "search --source everything statins")
	assert.Error(t, err)

	err = f.sh.Exec(context.Background(), "search --bogus statins")
	assert.Error(t, err)
}

func TestSearchSourceFlag(t *testing.T) {
	f := newFixture(t)
	out := f.exec(t, "search --source primary --from 2018 --to 2020 statins")
	assert.Contains(t, out, "3 records loaded")
	assert.NotContains(t, out, "secondary:")
}

func TestMoreAndShow(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "search statins")

	out := f.exec(t, "more")
	assert.Contains(t, out, "primary: +0 records (3 of 3)")
	assert.Contains(t, out, "5 records in the live list")

	out = f.exec(t, "show 2")
	assert.Contains(t, out, "2 records shown of 5")

	err := f.sh.Exec(context.Background(), "show zero")
	assert.Error(t, err)

	err = f.sh.Exec(context.Background(), "more tertiary")
	assert.Error(t, err)
}

func TestDups(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "search statins")

	out := f.exec(t, "dups")
	assert.Contains(t, out, "dup W1")
	assert.Contains(t, out, "matches pmid:1")
	assert.Contains(t, out, "1 of 2 compared secondary records flagged")
}

func TestFilterAcceptUndo(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "search statins")

	out := f.exec(t, "filter --strictness strict only statin trials")
	assert.Contains(t, out, "screening 5/5")
	assert.Contains(t, out, "2 passed, 3 failed")

	out = f.exec(t, "show")
	assert.Contains(t, out, `Pending filter "only statin trials": 2 passed`)

	out = f.exec(t, "accept statin trials")
	assert.Contains(t, out, "Snapshot #2: kept 2, removed 3")

	out = f.exec(t, "describe #2")
	assert.Equal(t, "filtered from #1: statin trials\n", out)

	out = f.exec(t, "undo")
	assert.Contains(t, out, "Restored 5 records")

	err := f.sh.Exec(context.Background(), "accept")
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestColumnLifecycle(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "search statins")

	out := f.exec(t, `column add --wait --type text "Study design" "What design does {{.Title}} use?"`)
	assert.Contains(t, out, `Computing column "Study design"`)
	assert.Contains(t, out, `Column "Study design": 5 values computed`)

	out = f.exec(t, "column list")
	assert.Contains(t, out, "Study design")
	assert.Contains(t, out, "done")

	out = f.exec(t, "show")
	assert.Contains(t, out, "value for")

	out = f.exec(t, `column fill "study design"`)
	assert.Contains(t, out, "0 values computed")

	out = f.exec(t, `column delete "Study design"`)
	assert.Contains(t, out, "Deleted column")
	assert.Contains(t, f.exec(t, "column list"), "No enrichment columns.")

	assert.Error(t, f.sh.Exec(context.Background(), "column add OnlyLabel"))
	assert.Error(t, f.sh.Exec(context.Background(), "column delete missing"))
	assert.Error(t, f.sh.Exec(context.Background(), "column rename x"))
	assert.True(t, apperr.Is(f.sh.Exec(context.Background(), `column add --type date "X" "prompt"`), apperr.Validation))
}

func TestSnapshotCommands(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "search statins")
	f.exec(t, "filter only statin trials")
	f.exec(t, "accept")

	out := f.exec(t, "snapshots")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "*  2"), "current snapshot is marked: %q", lines[2])
	assert.Contains(t, lines[3], `search "statins"`)

	out = f.exec(t, "save reviewed")
	assert.Contains(t, out, "Saved snapshot #3 (2 records)")

	out = f.exec(t, "compare 1 2")
	assert.Contains(t, out, "only in #1: 3")
	assert.Contains(t, out, "in both:    2")

	out = f.exec(t, "compare save only-a excluded")
	assert.Contains(t, out, "Saved snapshot #4 (3 records)")
	assert.Error(t, f.sh.Exec(context.Background(), "compare save nowhere"))

	out = f.exec(t, "load #1")
	assert.Contains(t, out, "Loaded snapshot #1 (5 records)")

	path := filepath.Join(t.TempDir(), "snap.yaml")
	assert.Contains(t, f.exec(t, "export #4 "+path), "Exported to")
	assert.Contains(t, f.exec(t, "import "+path), "Saved snapshot #5 (3 records)")

	out = f.exec(t, "delete #2")
	assert.Contains(t, out, "Deleted snapshot #2")
	assert.True(t, apperr.Is(f.sh.Exec(context.Background(), "describe #2"), apperr.NotFound))

	out = f.exec(t, "history")
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, "(deleted)")
	assert.Contains(t, out, "[reviewed]")
}

func TestCompareSaveWithoutComparison(t *testing.T) {
	f := newFixture(t)
	err := f.sh.Exec(context.Background(), "compare save both")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no comparison yet")
}

func TestHistoryWithoutJournal(t *testing.T) {
	f := newFixture(t)
	f.sh.history = nil
	err := f.sh.Exec(context.Background(), "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal configured")
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)
	for _, line := range []string{"describe", "delete", "load", "export 1", "import", "column", "compare 1"} {
		t.Run(line, func(t *testing.T) {
			err := f.sh.Exec(context.Background(), line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "usage", fmt.Sprintf("line %q", line))
		})
	}
}
