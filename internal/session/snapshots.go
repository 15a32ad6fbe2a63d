// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"maps"
	"strings"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// resolve finds a snapshot by id or "#version".
func (s *Session) resolve(op, ref string) (types.Snapshot, error) {
	snap, ok := s.lineage.Resolve(strings.TrimSpace(ref))
	if !ok {
		return types.Snapshot{}, apperr.NewNotFound(op, "snapshot", ref)
	}
	return snap, nil
}

// Snapshot returns the snapshot ref points at.
func (s *Session) Snapshot(ref string) (types.Snapshot, error) {
	return s.resolve("snapshot", ref)
}

// CurrentSnapshot returns the id of the snapshot the live list derives
// from. The snapshot may have been deleted since.
func (s *Session) CurrentSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshots lists the existing snapshots, newest first.
func (s *Session) Snapshots() []lineage.Summary {
	return s.lineage.List()
}

// Describe renders the provenance line of a snapshot.
func (s *Session) Describe(ref string) (string, error) {
	snap, err := s.resolve("describe", ref)
	if err != nil {
		return "", err
	}
	return s.lineage.Describe(snap), nil
}

// SaveSnapshot captures the live list as a new snapshot with the current
// provenance and an optional label.
func (s *Session) SaveSnapshot(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return "", apperr.NewValidation("saveSnapshot", "nothing to save: run a search first")
	}
	total := len(s.live)
	if s.prov.Kind == types.ProvenanceSearch {
		for _, c := range s.cursors {
			total += max(0, c.TotalAvailable-c.Returned)
		}
	}
	id, err := s.lineage.Create(s.live, s.prov, label, lineage.WithTotalMatched(total))
	if err != nil {
		return "", err
	}
	s.current = id
	return id, nil
}

// DeleteSnapshot removes a snapshot. Derived snapshots keep their parent
// id and describe it as unknown.
func (s *Session) DeleteSnapshot(ref string) (string, error) {
	snap, err := s.resolve("deleteSnapshot", ref)
	if err != nil {
		return "", err
	}
	return snap.ID, s.lineage.Delete(snap.ID)
}

// LoadSnapshot makes a snapshot's records the live list. This is a new
// dataset: enrichment columns are dropped and no source has more to fetch.
func (s *Session) LoadSnapshot(ref string) (types.Snapshot, error) {
	snap, err := s.resolve("loadSnapshot", ref)
	if err != nil {
		return types.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchGen++
	s.epoch++
	s.liveVersion++
	s.live = snap.Records
	if len(s.live) > s.cfg.GlobalCap {
		s.live = s.live[:s.cfg.GlobalCap]
	}
	counts := make(map[types.Source]int)
	for _, r := range s.live {
		counts[r.Source]++
	}
	s.cursors = make(map[types.Source]types.PaginationCursor, len(counts))
	for src, n := range counts {
		s.cursors[src] = types.NewCursor(n, n)
	}
	s.query = search.Query{FreeText: snap.Provenance.Query}
	s.sourceType = snap.Provenance.SourceType
	s.current = snap.ID
	s.prov = snap.Provenance.Clone()
	s.pending = nil
	s.undo = nil
	s.enricher.Reconcile(s.epoch, s.live)
	return snap, nil
}

// ImportSnapshot stores a snapshot read from an export file and returns its
// new id. The live list is not changed.
func (s *Session) ImportSnapshot(path string) (string, error) {
	f, err := lineage.ReadFile(path)
	if err != nil {
		return "", err
	}
	return s.lineage.Import(f.Snapshot)
}

// ExportSnapshot writes the snapshot ref points at to path.
func (s *Session) ExportSnapshot(ref, path string) error {
	snap, err := s.resolve("exportSnapshot", ref)
	if err != nil {
		return err
	}
	return lineage.WriteFile(path, snap, s.lineage.Describe(snap))
}

// CompareSnapshots partitions the records of two snapshots by id.
func (s *Session) CompareSnapshots(refA, refB string) (lineage.Comparison, error) {
	a, err := s.resolve("compareSnapshots", refA)
	if err != nil {
		return lineage.Comparison{}, err
	}
	b, err := s.resolve("compareSnapshots", refB)
	if err != nil {
		return lineage.Comparison{}, err
	}
	return s.lineage.Compare(a.ID, b.ID)
}

// SaveComparison stores one partition of a comparison as a compare
// snapshot with both inputs as parents.
func (s *Session) SaveComparison(c lineage.Comparison, p lineage.Partition, label string) (string, error) {
	return s.lineage.SavePartition(c, p, label)
}

// Cursors returns the per-source pagination state.
func (s *Session) Cursors() map[types.Source]types.PaginationCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cursors)
}
