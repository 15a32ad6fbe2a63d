// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// --- fake provider ---

type fakeProvider struct {
	mu      sync.Mutex
	calls   [][]string
	skip    map[string]bool
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeProvider) Enrich(_ context.Context, req Request, progress func(int)) ([]types.EnrichmentResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, types.RecordIDs(req.Rows))
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []types.EnrichmentResult
	for i, r := range req.Rows {
		progress(i + 1)
		if f.skip[r.ID] {
			continue
		}
		passed := len(r.Title)%2 == 0
		out = append(out, types.EnrichmentResult{ID: r.ID, Passed: &passed, Reasoning: "title parity"})
	}
	return out, nil
}

func rows(ids ...string) []types.Record {
	out := make([]types.Record, len(ids))
	for i, id := range ids {
		out[i] = types.Record{ID: id, Title: "title " + id, Source: types.SourcePrimary}
	}
	return out
}

func boolSpec() Spec {
	return Spec{Label: "Is RCT", OutputType: types.OutputBoolean, PromptTemplate: "Is {{.Title}} a randomized trial?"}
}

func waitRun(t *testing.T, run *Run) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return run.Wait(ctx)
}

// --- tests ---

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing label", Spec{OutputType: types.OutputText, PromptTemplate: "x"}},
		{"blank label", Spec{Label: "  ", OutputType: types.OutputText, PromptTemplate: "x"}},
		{"missing prompt", Spec{Label: "x", OutputType: types.OutputText}},
		{"bad output type", Spec{Label: "x", OutputType: "date", PromptTemplate: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.Validation))
		})
	}
	require.NoError(t, boolSpec().Validate())
}

func TestStartRejectsInvalidSpecWithoutCallingProvider(t *testing.T) {
	p := &fakeProvider{}
	e := New(p, nil)
	_, err := e.Start(context.Background(), 0, Spec{}, rows("1"), nil)
	require.Error(t, err)
	assert.Empty(t, p.calls)
	assert.Empty(t, e.Columns())
}

func TestStartMergesValuesAndReportsProgress(t *testing.T) {
	p := &fakeProvider{skip: map[string]bool{"3": true}}
	e := New(p, nil)

	var events []types.Progress
	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1", "2", "3"), func(pr types.Progress) {
		events = append(events, pr)
	})
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	assert.Equal(t, []types.Progress{{Completed: 1, Total: 3}, {Completed: 2, Total: 3}, {Completed: 3, Total: 3}}, events)
	assert.Equal(t, 2, run.Applied())

	cols := e.Columns()
	require.Len(t, cols, 1)
	assert.Equal(t, StatusDone, cols[0].Status)
	assert.Equal(t, "Is RCT", cols[0].Label)
	assert.Contains(t, cols[0].Values, "1")
	assert.Contains(t, cols[0].Values, "2")
	assert.NotContains(t, cols[0].Values, "3", "skipped rows stay unset")
	require.NotNil(t, cols[0].Values["1"].Bool)
	_, running := e.Running()
	assert.False(t, running)
}

func TestFailureMarksEveryRowWithSentinel(t *testing.T) {
	p := &fakeProvider{err: errors.New("classifier unavailable")}
	e := New(p, nil)

	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1", "2"), nil)
	require.NoError(t, err)
	err = waitRun(t, run)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Enrichment))

	cols := e.Columns()
	require.Len(t, cols, 1, "failed column stays visible")
	assert.Equal(t, StatusFailed, cols[0].Status)
	for _, id := range []string{"1", "2"} {
		assert.True(t, cols[0].Values[id].IsError(), id)
	}
	require.NoError(t, e.Delete(cols[0].ID))
	assert.Empty(t, e.Columns())
}

func TestSecondStartWhileRunningIsBusy(t *testing.T) {
	p := &fakeProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := New(p, nil)

	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	require.NoError(t, err)
	<-p.started

	_, err = e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Busy))

	close(p.release)
	require.NoError(t, waitRun(t, run))

	p.started, p.release = nil, nil
	run2, err := e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run2))
	assert.Len(t, e.Columns(), 2)
}

func TestReconcileRefinementKeepsValues(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	e.Reconcile(1, rows("1", "2", "3"))

	run, err := e.Start(context.Background(), 1, boolSpec(), rows("1", "2", "3"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	res := e.Reconcile(1, rows("1", "2", "3", "4", "5"))
	assert.Equal(t, ReconcileResult{Change: ChangeRefinement, RowsRetained: 3, RowsBlank: 2}, res)

	cols := e.Columns()
	require.Len(t, cols, 1)
	for _, id := range []string{"1", "2", "3"} {
		assert.Contains(t, cols[0].Values, id)
	}
	for _, id := range []string{"4", "5"} {
		assert.NotContains(t, cols[0].Values, id)
	}
}

func TestReconcileNewDatasetDiscardsColumns(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	e.Reconcile(1, rows("1", "2", "3"))
	run, err := e.Start(context.Background(), 1, boolSpec(), rows("1", "2", "3"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	res := e.Reconcile(2, rows("9", "8", "7"))
	assert.Equal(t, ChangeNewDataset, res.Change)
	assert.Equal(t, 1, res.ColumnsDropped)
	assert.Empty(t, e.Columns())
	assert.Equal(t, uint64(2), e.Epoch())
}

func TestResultsOfSupersededRunAreDropped(t *testing.T) {
	p := &fakeProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := New(p, nil)
	e.Reconcile(1, rows("1", "2"))

	var events []types.Progress
	run, err := e.Start(context.Background(), 1, boolSpec(), rows("1", "2"), func(pr types.Progress) {
		events = append(events, pr)
	})
	require.NoError(t, err)
	<-p.started

	e.Reconcile(2, rows("9"))
	close(p.release)

	require.ErrorIs(t, waitRun(t, run), apperr.ErrStale)
	assert.Empty(t, events, "progress of a superseded run is not applied")
	assert.Empty(t, e.Columns())
	_, running := e.Running()
	assert.False(t, running)
}

func TestDeleteWhileRunningDropsResult(t *testing.T) {
	p := &fakeProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := New(p, nil)

	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	require.NoError(t, err)
	<-p.started

	require.NoError(t, e.Delete(run.ColumnID()))
	_, running := e.Running()
	assert.False(t, running, "deleting the running column frees the engine")

	close(p.release)
	require.ErrorIs(t, waitRun(t, run), apperr.ErrStale)
	assert.Empty(t, e.Columns())
}

func TestStartWithOutdatedEpochIsStale(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	e.Reconcile(3, rows("1"))
	_, err := e.Start(context.Background(), 2, boolSpec(), rows("1"), nil)
	require.ErrorIs(t, err, apperr.ErrStale)
}

func TestFillComputesOnlyBlankRows(t *testing.T) {
	p := &fakeProvider{}
	e := New(p, nil)
	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1", "2"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	e.Reconcile(0, rows("1", "2", "3", "4"))
	fill, err := e.Fill(context.Background(), 0, run.ColumnID(), rows("1", "2", "3", "4"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, fill))

	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"3", "4"}, p.calls[1])
	col, ok := e.Column(run.ColumnID())
	require.True(t, ok)
	assert.Len(t, col.Values, 4)
}

func TestFillUnknownColumn(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	_, err := e.Fill(context.Background(), 0, "nope", rows("1"), nil)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteUnknownColumn(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	assert.True(t, apperr.Is(e.Delete("nope"), apperr.NotFound))
}

func TestColumnsAreCopies(t *testing.T) {
	e := New(&fakeProvider{}, nil)
	run, err := e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	cols := e.Columns()
	cols[0].Values["1"] = types.ErrorValue("tampered")
	again, _ := e.Column(run.ColumnID())
	assert.False(t, again.Values["1"].IsError())
}

func TestNoProviderIsValidationError(t *testing.T) {
	e := New(nil, nil)
	_, err := e.Start(context.Background(), 0, boolSpec(), rows("1"), nil)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Empty(t, e.Columns())
}
