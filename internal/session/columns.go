// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"slices"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/dedup"
	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// AddColumn validates spec, tops the live list up to the global cap and
// starts computing the column over it in the background. The run outlives
// ctx and stops only when it finishes, is superseded, or the session is
// closed. onProgress is called with the engine lock held and must not call
// back into the session.
func (s *Session) AddColumn(ctx context.Context, spec enrich.Spec, onProgress func(types.Progress)) (*enrich.Run, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if s.liveCount() == 0 {
		return nil, apperr.NewValidation("addColumn", "no records to enrich")
	}
	if id, running := s.enricher.Running(); running {
		label := id
		if c, ok := s.enricher.Column(id); ok {
			label = c.Label
		}
		return nil, apperr.NewBusy("addColumn", label)
	}

	if err := s.topUp(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	rows, epoch := s.live, s.epoch
	s.mu.Unlock()

	return s.enricher.Start(s.base, epoch, spec, rows, onProgress)
}

// FillColumn computes an existing column for live rows that have no value
// yet, such as rows appended by LoadMore after the column was added.
func (s *Session) FillColumn(columnID string, onProgress func(types.Progress)) (*enrich.Run, error) {
	s.mu.Lock()
	rows, epoch := s.live, s.epoch
	s.mu.Unlock()

	return s.enricher.Fill(s.base, epoch, columnID, rows, onProgress)
}

// DeleteColumn removes a column, abandoning its run if one is in flight.
func (s *Session) DeleteColumn(columnID string) error {
	return s.enricher.Delete(columnID)
}

// Columns returns copies of the enrichment columns in creation order.
func (s *Session) Columns() []enrich.ColumnView {
	return s.enricher.Columns()
}

// Annotations returns the duplicate annotations of the live list, in live
// order. They are recomputed only after the list changes.
func (s *Session) Annotations() []types.DuplicateAnnotation {
	s.mu.Lock()
	if s.annotations != nil && s.annotationsVersion == s.liveVersion {
		out := slices.Clone(s.annotations)
		s.mu.Unlock()
		return out
	}
	rows, version := s.live, s.liveVersion
	s.mu.Unlock()

	computed := dedup.Annotate(rows, rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	if version == s.liveVersion {
		s.annotations = computed
		s.annotationsVersion = version
	}
	return slices.Clone(computed)
}
