// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"strings"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// pendingFilter is a computed but not yet accepted filter. It is bound to
// the live list version it was computed over.
type pendingFilter struct {
	condition   string
	strictness  types.Strictness
	liveVersion uint64
	results     map[string]types.FilterResult
	order       []string
}

// FilterOutcome describes a pending filter.
type FilterOutcome struct {
	Condition  string               `json:"condition"`
	Strictness types.Strictness     `json:"strictness"`
	Passed     []string             `json:"passed"`
	Failed     []string             `json:"failed"`
	Undecided  []string             `json:"undecided,omitempty"`
	Results    []types.FilterResult `json:"results"`
}

func (p *pendingFilter) outcome() FilterOutcome {
	o := FilterOutcome{Condition: p.condition, Strictness: p.strictness}
	for _, id := range p.order {
		r, ok := p.results[id]
		switch {
		case !ok:
			o.Undecided = append(o.Undecided, id)
		case r.Passed:
			o.Passed = append(o.Passed, id)
			o.Results = append(o.Results, r)
		default:
			o.Failed = append(o.Failed, id)
			o.Results = append(o.Results, r)
		}
	}
	return o
}

// Filter screens the whole live list against condition and keeps the
// verdicts as the pending filter. The live list is topped up to the global
// cap first. Nothing changes until AcceptFilter. Rows the provider could
// not decide are listed as undecided and do not pass.
func (s *Session) Filter(ctx context.Context, condition string, strictness types.Strictness, onProgress func(types.Progress)) (FilterOutcome, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return FilterOutcome{}, apperr.NewValidation("filter", "filter text is required")
	}
	if strictness == "" {
		strictness = types.StrictnessBalanced
	}
	if !strictness.Valid() {
		return FilterOutcome{}, apperr.NewValidation("filter", "unknown strictness %q: want lenient, balanced, or strict", strictness)
	}
	if s.filterer == nil {
		return FilterOutcome{}, apperr.NewValidation("filter", "no filter provider configured")
	}
	if s.liveCount() == 0 {
		return FilterOutcome{}, apperr.NewValidation("filter", "no records to filter")
	}

	if err := s.topUp(ctx); err != nil {
		return FilterOutcome{}, err
	}

	s.mu.Lock()
	rows := s.live
	version := s.liveVersion
	s.mu.Unlock()

	var progress func(int)
	if onProgress != nil {
		progress = func(completed int) {
			onProgress(types.Progress{Completed: completed, Total: len(rows)})
		}
	}
	results, err := s.filterer.Filter(ctx, rows, condition, strictness, progress)
	if err != nil {
		return FilterOutcome{}, apperr.NewRetrieval("filter", "filter provider", err)
	}

	p := &pendingFilter{
		condition:   condition,
		strictness:  strictness,
		liveVersion: version,
		results:     make(map[string]types.FilterResult, len(results)),
		order:       types.RecordIDs(rows),
	}
	for _, r := range results {
		p.results[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.liveVersion {
		return FilterOutcome{}, apperr.ErrStale
	}
	s.pending = p
	return p.outcome(), nil
}

// AcceptResult reports an accepted filter.
type AcceptResult struct {
	SnapshotID string `json:"snapshot_id"`
	Version    int    `json:"version"`
	Kept       int    `json:"kept"`
	Removed    int    `json:"removed"`
}

// AcceptFilter replaces the live list with the records that passed the
// pending filter and records the result as a filter snapshot derived from
// the current one. description defaults to the filter condition. The
// previous list can be restored with UndoFilter.
func (s *Session) AcceptFilter(description string) (AcceptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return AcceptResult{}, apperr.NewValidation("acceptFilter", "no pending filter")
	}
	if s.pending.liveVersion != s.liveVersion {
		s.pending = nil
		return AcceptResult{}, apperr.ErrStale
	}

	kept := make([]types.Record, 0, len(s.live))
	for _, r := range s.live {
		if res, ok := s.pending.results[r.ID]; ok && res.Passed {
			kept = append(kept, r)
		}
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = s.pending.condition
	}
	prov := types.FilterProvenance(s.current, description)
	id, err := s.lineage.Create(kept, prov, "")
	if err != nil {
		return AcceptResult{}, err
	}

	s.undo = append(s.undo, undoEntry{live: s.live, current: s.current, prov: s.prov})
	removed := len(s.live) - len(kept)
	s.live = kept
	s.current = id
	s.prov = prov
	s.liveVersion++
	s.pending = nil
	s.enricher.Reconcile(s.epoch, s.live)

	version, _ := s.lineage.VersionOf(id)
	s.logger.Info("filter accepted", "kept", len(kept), "removed", removed, "snapshot", version)
	return AcceptResult{SnapshotID: id, Version: version, Kept: len(kept), Removed: removed}, nil
}

// UndoFilter restores the live list and current snapshot from before the
// last accepted filter. The filter snapshot itself is kept.
func (s *Session) UndoFilter() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) == 0 {
		return 0, apperr.NewValidation("undoFilter", "no filter to undo")
	}
	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	s.live = last.live
	s.current = last.current
	s.prov = last.prov
	s.liveVersion++
	s.pending = nil
	s.enricher.Reconcile(s.epoch, s.live)
	return len(s.live), nil
}

// Pending returns the pending filter, if any.
func (s *Session) Pending() (FilterOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return FilterOutcome{}, false
	}
	return s.pending.outcome(), true
}
