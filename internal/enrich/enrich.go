// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich runs user-defined enrichment columns over the live record
// set and reconciles their values when the record set changes.
//
// The engine tracks two tokens. The dataset epoch belongs to the session:
// it changes when a search or snapshot load replaces the live list and stays
// put when records are appended or narrowed. Each run also carries its own
// token. Progress and results are applied only while both tokens are still
// current; anything else is dropped on arrival.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Request is what a provider needs to compute one column.
type Request struct {
	Rows           []types.Record
	PromptTemplate string
	OutputType     types.OutputType
	InputFields    []string
}

// Provider computes column values. It calls progress with the number of
// rows completed so far and may omit rows it cannot classify.
type Provider interface {
	Enrich(ctx context.Context, req Request, progress func(completed int)) ([]types.EnrichmentResult, error)
}

// Spec is the user input that defines a column.
type Spec struct {
	Label          string           `json:"label"`
	OutputType     types.OutputType `json:"output_type"`
	PromptTemplate string           `json:"prompt_template"`
	InputFields    []string         `json:"input_fields,omitempty"`
}

// Validate rejects a spec before anything is sent to the provider.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return apperr.NewValidation("addColumn", "column name is required")
	}
	if strings.TrimSpace(s.PromptTemplate) == "" {
		return apperr.NewValidation("addColumn", "column prompt is required")
	}
	if !s.OutputType.Valid() {
		return apperr.NewValidation("addColumn", "unknown output type %q: want text, number, or boolean", s.OutputType)
	}
	return nil
}

// Status is the lifecycle state of a column.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ColumnView is a read-only copy of a column and its run state.
type ColumnView struct {
	types.EnrichmentColumn
	Status   Status         `json:"status"`
	Progress types.Progress `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// Change classifies a reconciliation.
type Change string

const (
	ChangeNewDataset Change = "new_dataset"
	ChangeRefinement Change = "refinement"
)

// ReconcileResult reports what Reconcile did.
type ReconcileResult struct {
	Change         Change `json:"change"`
	ColumnsDropped int    `json:"columns_dropped"`
	RowsRetained   int    `json:"rows_retained"`
	RowsBlank      int    `json:"rows_blank"`
}

type column struct {
	col      types.EnrichmentColumn
	status   Status
	progress types.Progress
	errMsg   string
	token    uint64
}

// Engine owns the enrichment columns of one session.
type Engine struct {
	provider Provider
	logger   *slog.Logger

	mu      sync.Mutex
	epoch   uint64
	columns []*column
	running *Run
	nextTok uint64
}

// New returns an engine for the given provider.
func New(provider Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, logger: logger}
}

// Epoch returns the dataset epoch the engine is aligned with.
func (e *Engine) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// Reconcile aligns the engine with a new version of the live list. A new
// epoch is a new dataset: every column and its values are discarded and any
// running computation is abandoned. The same epoch is a refinement: values
// stay keyed by record id, rows that were already computed keep them, and
// newly appeared rows are left blank.
func (e *Engine) Reconcile(epoch uint64, rows []types.Record) ReconcileResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch != e.epoch {
		dropped := len(e.columns)
		e.epoch = epoch
		e.columns = nil
		if e.running != nil {
			e.running.cancel()
			e.running = nil
		}
		if dropped > 0 {
			e.logger.Info("dataset replaced, enrichment columns discarded", "columns", dropped, "epoch", epoch)
		}
		return ReconcileResult{Change: ChangeNewDataset, ColumnsDropped: dropped, RowsBlank: len(rows)}
	}

	res := ReconcileResult{Change: ChangeRefinement}
	for _, r := range rows {
		if e.hasAnyValue(r.ID) {
			res.RowsRetained++
		} else {
			res.RowsBlank++
		}
	}
	return res
}

func (e *Engine) hasAnyValue(id string) bool {
	for _, c := range e.columns {
		if _, ok := c.col.Values[id]; ok {
			return true
		}
	}
	return false
}

// Start creates a column from spec and computes it over rows. The epoch is
// the one rows were read under; a mismatch means the list already changed
// and the start is refused with apperr.ErrStale. Only one run may be in
// flight at a time.
func (e *Engine) Start(ctx context.Context, epoch uint64, spec Spec, rows []types.Record, onProgress func(types.Progress)) (*Run, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkStartable(epoch); err != nil {
		return nil, err
	}
	c := &column{
		col: types.EnrichmentColumn{
			ID:             uuid.NewString(),
			Label:          strings.TrimSpace(spec.Label),
			OutputType:     spec.OutputType,
			PromptTemplate: spec.PromptTemplate,
			InputFields:    normalizeFields(spec.InputFields),
			Values:         make(map[string]types.CellValue),
		},
	}
	e.columns = append(e.columns, c)
	return e.launch(ctx, c, rows, onProgress), nil
}

// Fill computes an existing column for the rows that have no value yet or
// hold the error sentinel, leaving computed rows untouched.
func (e *Engine) Fill(ctx context.Context, epoch uint64, columnID string, rows []types.Record, onProgress func(types.Progress)) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkStartable(epoch); err != nil {
		return nil, err
	}
	c := e.find(columnID)
	if c == nil {
		return nil, apperr.NewNotFound("fillColumn", "column", columnID)
	}
	var blank []types.Record
	for _, r := range rows {
		if v, ok := c.col.Values[r.ID]; !ok || v.IsError() {
			blank = append(blank, r)
		}
	}
	return e.launch(ctx, c, blank, onProgress), nil
}

func (e *Engine) checkStartable(epoch uint64) error {
	if epoch != e.epoch {
		return apperr.ErrStale
	}
	if e.running != nil {
		label := e.running.columnID
		if c := e.find(e.running.columnID); c != nil {
			label = c.col.Label
		}
		return apperr.NewBusy("addColumn", label)
	}
	if e.provider == nil {
		return apperr.NewValidation("addColumn", "no enrichment provider configured")
	}
	return nil
}

// launch must be called with e.mu held.
func (e *Engine) launch(ctx context.Context, c *column, rows []types.Record, onProgress func(types.Progress)) *Run {
	e.nextTok++
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		columnID: c.col.ID,
		token:    e.nextTok,
		epoch:    e.epoch,
		total:    len(rows),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.token = run.token
	c.status = StatusRunning
	c.errMsg = ""
	c.progress = types.Progress{Total: len(rows)}
	e.running = run

	req := Request{
		Rows:           types.CloneRecords(rows),
		PromptTemplate: c.col.PromptTemplate,
		OutputType:     c.col.OutputType,
		InputFields:    c.col.InputFields,
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.ID] = true
	}

	e.logger.Debug("enrichment run started", "column", c.col.Label, "rows", len(rows), "token", run.token)

	go func() {
		defer close(run.done)
		defer cancel()
		if len(req.Rows) == 0 {
			e.finish(run, ids, nil, nil)
			return
		}
		results, err := e.provider.Enrich(runCtx, req, func(completed int) {
			e.progress(run, completed, onProgress)
		})
		e.finish(run, ids, results, err)
	}()
	return run
}

// current reports whether run is still the live run of its column. It must
// be called with e.mu held.
func (e *Engine) current(run *Run) (*column, bool) {
	if e.running != run || run.epoch != e.epoch {
		return nil, false
	}
	c := e.find(run.columnID)
	if c == nil || c.token != run.token {
		return nil, false
	}
	return c, true
}

func (e *Engine) progress(run *Run, completed int, onProgress func(types.Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.current(run)
	if !ok {
		return
	}
	if completed > run.total {
		completed = run.total
	}
	if completed <= c.progress.Completed {
		return
	}
	c.progress = types.Progress{Completed: completed, Total: run.total}
	if onProgress != nil {
		onProgress(c.progress)
	}
}

func (e *Engine) finish(run *Run, ids map[string]bool, results []types.EnrichmentResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.current(run)
	if e.running == run {
		e.running = nil
	}
	if !ok {
		run.err = apperr.ErrStale
		e.logger.Debug("dropping superseded enrichment result", "column", run.columnID, "token", run.token)
		return
	}

	if err != nil {
		for id := range ids {
			c.col.Values[id] = types.ErrorValue(err.Error())
		}
		c.status = StatusFailed
		c.errMsg = err.Error()
		run.err = apperr.NewEnrichment("runColumn", c.col.Label, err)
		e.logger.Warn("enrichment run failed", "column", c.col.Label, "error", err)
		return
	}

	applied := 0
	for _, r := range results {
		if !ids[r.ID] {
			continue
		}
		c.col.Values[r.ID] = r.CellValue(c.col.OutputType)
		applied++
	}
	c.status = StatusDone
	c.progress = types.Progress{Completed: run.total, Total: run.total}
	run.applied = applied
	e.logger.Debug("enrichment run finished", "column", c.col.Label, "applied", applied, "rows", run.total)
}

// Delete removes a column and abandons its run if one is in flight.
func (e *Engine) Delete(columnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, c := range e.columns {
		if c.col.ID != columnID {
			continue
		}
		e.columns = append(e.columns[:i:i], e.columns[i+1:]...)
		if e.running != nil && e.running.columnID == columnID {
			e.running.cancel()
			e.running = nil
		}
		return nil
	}
	return apperr.NewNotFound("deleteColumn", "column", columnID)
}

// Columns returns copies of all columns in creation order.
func (e *Engine) Columns() []ColumnView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ColumnView, len(e.columns))
	for i, c := range e.columns {
		out[i] = c.view()
	}
	return out
}

// Column returns a copy of one column.
func (e *Engine) Column(id string) (ColumnView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c := e.find(id); c != nil {
		return c.view(), true
	}
	return ColumnView{}, false
}

// Running returns the id of the column being computed, if any.
func (e *Engine) Running() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running == nil {
		return "", false
	}
	return e.running.columnID, true
}

// find must be called with e.mu held.
func (e *Engine) find(id string) *column {
	for _, c := range e.columns {
		if c.col.ID == id {
			return c
		}
	}
	return nil
}

func (c *column) view() ColumnView {
	return ColumnView{
		EnrichmentColumn: c.col.Clone(),
		Status:           c.status,
		Progress:         c.progress,
		Error:            c.errMsg,
	}
}

func normalizeFields(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Run is the handle of one in-flight computation.
type Run struct {
	columnID string
	token    uint64
	epoch    uint64
	total    int
	cancel   context.CancelFunc
	done     chan struct{}

	// Written before done is closed.
	err     error
	applied int
}

// ColumnID returns the column being computed.
func (r *Run) ColumnID() string { return r.columnID }

// Done is closed when the run has been applied or dropped.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx is done. It returns the
// enrichment error, apperr.ErrStale if the result was dropped, or nil.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Applied is the number of row values merged; valid after Done.
func (r *Run) Applied() int {
	<-r.done
	return r.applied
}

// String identifies the run in logs.
func (r *Run) String() string {
	return fmt.Sprintf("run %d of column %s", r.token, r.columnID)
}
