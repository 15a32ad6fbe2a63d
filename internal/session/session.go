// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session holds the state of one interactive reconciliation
// session: the live record list, its per-source cursors, the pending
// filter and undo stack, and the collaborators that fetch, enrich,
// deduplicate and snapshot it.
//
// Every mutation happens under one mutex and replaces the live slice
// instead of writing into it, so records handed out by View stay valid.
// Network calls run outside the lock and commit their results through a
// generation check; a commit whose generation is no longer current is
// refused with apperr.ErrStale.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/dedup"
	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/internal/fetch"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// FilterProvider screens records against a free-text condition.
type FilterProvider interface {
	Filter(ctx context.Context, rows []types.Record, condition string, strictness types.Strictness, progress func(completed int)) ([]types.FilterResult, error)
}

// Options wires a Session to its collaborators. Providers, Lineage and
// Enricher are required; a nil Fetcher gets a default controller.
type Options struct {
	Config    types.SessionConfig
	Providers []search.Provider
	Fetcher   *fetch.Controller
	Enricher  *enrich.Engine
	Filterer  FilterProvider
	Lineage   *lineage.Store
	Logger    *slog.Logger
	// Warnings receives one line per provider that failed during a search.
	Warnings io.Writer
}

// Session is the aggregate behind the interactive shell.
type Session struct {
	cfg       types.SessionConfig
	providers map[types.Source]search.Provider
	fetcher   *fetch.Controller
	enricher  *enrich.Engine
	filterer  FilterProvider
	lineage   *lineage.Store
	logger    *slog.Logger
	warn      io.Writer

	// base outlives individual commands; enrichment runs are bound to it.
	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	searchGen   uint64
	epoch       uint64
	liveVersion uint64
	query       search.Query
	sourceType  types.SourceType
	live        []types.Record
	cursors     map[types.Source]types.PaginationCursor
	loading     map[types.Source]bool
	current     string
	prov        types.Provenance
	pending     *pendingFilter
	undo        []undoEntry

	annotations        []types.DuplicateAnnotation
	annotationsVersion uint64
}

type undoEntry struct {
	live    []types.Record
	current string
	prov    types.Provenance
}

// New returns an empty session.
func New(opts Options) (*Session, error) {
	if opts.Lineage == nil {
		return nil, fmt.Errorf("session needs a lineage store")
	}
	if opts.Enricher == nil {
		return nil, fmt.Errorf("session needs an enrichment engine")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	warn := opts.Warnings
	if warn == nil {
		warn = io.Discard
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewController(types.SearchConfig{}, logger)
	}

	providers := make(map[types.Source]search.Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[p.Source()] = p
	}

	base, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:       opts.Config.WithDefaults(),
		providers: providers,
		fetcher:   fetcher,
		enricher:  opts.Enricher,
		filterer:  opts.Filterer,
		lineage:   opts.Lineage,
		logger:    logger,
		warn:      warn,
		base:      base,
		cancel:    cancel,
		cursors:   make(map[types.Source]types.PaginationCursor),
		loading:   make(map[types.Source]bool),
	}, nil
}

// Close abandons any enrichment run still in flight.
func (s *Session) Close() {
	s.cancel()
}

// Config returns the session caps.
func (s *Session) Config() types.SessionConfig { return s.cfg }

// SearchResult reports what a search replaced the live list with.
type SearchResult struct {
	SnapshotID   string                                  `json:"snapshot_id"`
	Version      int                                     `json:"version"`
	Records      int                                     `json:"records"`
	TotalMatched int                                     `json:"total_matched"`
	Cursors      map[types.Source]types.PaginationCursor `json:"cursors"`
	Errors       []string                                `json:"errors,omitempty"`
	Reconcile    enrich.ReconcileResult                  `json:"reconcile"`
}

// Search runs a new search and makes its first pages the live list. The
// previous dataset, its enrichment columns, pending filter and undo
// history are discarded. Sources are queried concurrently; the live list
// holds the primary page first and is trimmed to the global cap.
func (s *Session) Search(ctx context.Context, query search.Query, sourceType types.SourceType) (SearchResult, error) {
	if query.IsEmpty() {
		return SearchResult{}, apperr.NewValidation("search", "query is empty: provide search text, an author, or keywords")
	}
	if sourceType == "" {
		sourceType = types.SourceTypeAll
	}
	var selected []search.Provider
	for _, src := range types.Sources {
		if p, ok := s.providers[src]; ok && sourceType.Includes(src) {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		return SearchResult{}, apperr.NewValidation("search", "no provider configured for source type %q", sourceType)
	}

	s.mu.Lock()
	s.searchGen++
	gen := s.searchGen
	s.mu.Unlock()

	out, err := search.SearchAll(ctx, query, selected, s.cfg.InitialPageSize, s.warn)
	if err != nil {
		return SearchResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.searchGen {
		return SearchResult{}, apperr.ErrStale
	}

	live := make([]types.Record, 0, s.cfg.GlobalCap)
	seen := make(map[string]bool)
	cursors := make(map[types.Source]types.PaginationCursor, len(selected))
	total := 0
	for _, p := range selected {
		src := p.Source()
		page, ok := out.Pages[src]
		if !ok {
			cursors[src] = types.NewCursor(0, 0)
			continue
		}
		kept := 0
		for _, r := range page.Records {
			if len(live) == s.cfg.GlobalCap {
				break
			}
			kept++
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			r = r.Clone()
			r.Source = src
			live = append(live, r)
		}
		cursors[src] = types.NewCursor(max(page.Total, len(page.Records)), kept)
		total += max(page.Total, len(page.Records))
	}

	prov := types.SearchProvenance(query.String(), query.Dates(), sourceType)
	id, err := s.lineage.Create(live, prov, "", lineage.WithTotalMatched(total))
	if err != nil {
		return SearchResult{}, err
	}

	s.epoch++
	s.liveVersion++
	s.query = query
	s.sourceType = sourceType
	s.live = live
	s.cursors = cursors
	s.current = id
	s.prov = prov
	s.pending = nil
	s.undo = nil
	rec := s.enricher.Reconcile(s.epoch, s.live)

	version, _ := s.lineage.VersionOf(id)
	s.logger.Info("search committed", "query", query.String(), "records", len(live), "total", total, "snapshot", version)

	return SearchResult{
		SnapshotID:   id,
		Version:      version,
		Records:      len(live),
		TotalMatched: total,
		Cursors:      maps.Clone(cursors),
		Errors:       out.Errors,
		Reconcile:    rec,
	}, nil
}

// LoadResult reports one LoadMore call.
type LoadResult struct {
	Sources map[types.Source]fetch.Result `json:"sources"`
	Live    int                           `json:"live"`
}

// Fetched sums the records committed across sources.
func (r LoadResult) Fetched() int {
	n := 0
	for _, res := range r.Sources {
		n += res.Fetched
	}
	return n
}

// LimitApplied reports whether the global cap bounded any source.
func (r LoadResult) LimitApplied() bool {
	for _, res := range r.Sources {
		if res.Plan.LimitApplied {
			return true
		}
	}
	return false
}

// LoadMore fetches further pages for one source, or for every source of the
// current search when src is empty, up to the global cap. Batches are
// committed as they arrive; on error the batches already committed stay.
func (s *Session) LoadMore(ctx context.Context, src types.Source) (LoadResult, error) {
	if src != "" && !src.Valid() {
		return LoadResult{}, apperr.NewValidation("loadMore", "unknown source %q", src)
	}

	s.mu.Lock()
	if s.epoch == 0 {
		s.mu.Unlock()
		return LoadResult{}, apperr.NewValidation("loadMore", "no active search")
	}
	var sources []types.Source
	for _, candidate := range types.Sources {
		if _, ok := s.cursors[candidate]; ok && (src == "" || src == candidate) {
			sources = append(sources, candidate)
		}
	}
	s.mu.Unlock()

	if src != "" && len(sources) == 0 {
		return LoadResult{}, apperr.NewValidation("loadMore", "source %s is not part of the current search", src)
	}

	res := LoadResult{Sources: make(map[types.Source]fetch.Result, len(sources))}
	for _, source := range sources {
		r, err := s.loadSource(ctx, source)
		res.Sources[source] = r
		if err != nil {
			res.Live = s.liveCount()
			return res, err
		}
	}
	res.Live = s.liveCount()
	return res, nil
}

func (s *Session) loadSource(ctx context.Context, src types.Source) (fetch.Result, error) {
	s.mu.Lock()
	if s.loading[src] {
		s.mu.Unlock()
		return fetch.Result{}, apperr.NewBusy("loadMore", "fetch for "+string(src))
	}
	p, ok := s.providers[src]
	if !ok {
		s.mu.Unlock()
		return fetch.Result{}, apperr.NewValidation("loadMore", "no provider for source %s", src)
	}
	epoch := s.epoch
	query := s.query
	req := fetch.Request{
		Source:    src,
		GlobalCap: s.cfg.GlobalCap,
		LiveTotal: len(s.live),
		Cursor:    s.cursors[src],
	}
	s.loading[src] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.loading, src)
		s.mu.Unlock()
	}()

	req.Fetch = func(ctx context.Context, offset, limit int) (fetch.Batch, error) {
		page, err := p.Search(ctx, query, limit, offset)
		if err != nil {
			return fetch.Batch{}, err
		}
		return fetch.Batch{Records: page.Records, TotalAvailable: page.Total}, nil
	}
	req.Commit = func(records []types.Record, cursor types.PaginationCursor) (fetch.Committed, error) {
		return s.commitBatch(epoch, src, records, cursor)
	}
	return s.fetcher.Execute(ctx, req)
}

// commitBatch appends one fetched batch to the live list if the dataset it
// was requested for is still live. Records beyond the global cap are not
// kept and the stored cursor stays before them; ids already present are
// skipped but still count as returned.
func (s *Session) commitBatch(epoch uint64, src types.Source, records []types.Record, cursor types.PaginationCursor) (fetch.Committed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return fetch.Committed{}, apperr.ErrStale
	}

	room := max(s.cfg.GlobalCap-len(s.live), 0)
	if len(records) > room {
		dropped := len(records) - room
		records = records[:room]
		cursor = types.NewCursor(cursor.TotalAvailable, cursor.Returned-dropped)
	}
	s.cursors[src] = cursor

	present := make(map[string]bool, len(s.live))
	for _, r := range s.live {
		present[r.ID] = true
	}
	next := make([]types.Record, len(s.live), len(s.live)+len(records))
	copy(next, s.live)
	for _, r := range records {
		if present[r.ID] {
			continue
		}
		present[r.ID] = true
		r = r.Clone()
		r.Source = src
		next = append(next, r)
	}

	if len(next) > len(s.live) {
		s.live = next
		s.liveVersion++
		s.pending = nil
		s.enricher.Reconcile(s.epoch, s.live)
	}
	return fetch.Committed{
		Cursor:     cursor,
		Kept:       len(records),
		CapReached: len(s.live) >= s.cfg.GlobalCap,
	}, nil
}

// topUp fills the live list to the global cap from every source that has
// more. It runs before operations that consume the whole set.
func (s *Session) topUp(ctx context.Context) error {
	s.mu.Lock()
	need := len(s.live) < s.cfg.GlobalCap
	more := false
	for _, c := range s.cursors {
		more = more || c.HasMore
	}
	s.mu.Unlock()
	if !need || !more {
		return nil
	}
	_, err := s.LoadMore(ctx, "")
	return err
}

func (s *Session) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Records returns the whole live list. The slice is never written after it
// is handed out.
func (s *Session) Records() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[:len(s.live):len(s.live)]
}

// View is an immutable picture of the session for display.
type View struct {
	Epoch       uint64                                  `json:"epoch"`
	Query       string                                  `json:"query"`
	SnapshotID  string                                  `json:"snapshot_id,omitempty"`
	Version     int                                     `json:"version,omitempty"`
	Records     []types.Record                          `json:"records"`
	Total       int                                     `json:"total"`
	Cursors     map[types.Source]types.PaginationCursor `json:"cursors"`
	Annotations map[string]types.DuplicateAnnotation    `json:"annotations"`
	Columns     []enrich.ColumnView                     `json:"columns"`
	Pending     *FilterOutcome                          `json:"pending,omitempty"`
	CanUndo     bool                                    `json:"can_undo"`
}

// View returns at most limit live records (never more than the display
// cap) with their annotations and column values.
func (s *Session) View(limit int) View {
	if limit <= 0 || limit > s.cfg.DisplayCap {
		limit = s.cfg.DisplayCap
	}
	annotations := dedup.Index(s.Annotations())

	s.mu.Lock()
	v := View{
		Epoch:       s.epoch,
		Query:       s.query.String(),
		SnapshotID:  s.current,
		Records:     s.live[:min(limit, len(s.live)):min(limit, len(s.live))],
		Total:       len(s.live),
		Cursors:     maps.Clone(s.cursors),
		Annotations: annotations,
		CanUndo:     len(s.undo) > 0,
	}
	if s.pending != nil {
		o := s.pending.outcome()
		v.Pending = &o
	}
	s.mu.Unlock()

	if v.SnapshotID != "" {
		v.Version, _ = s.lineage.VersionOf(v.SnapshotID)
	}
	v.Columns = s.enricher.Columns()
	return v
}
