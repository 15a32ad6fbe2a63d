// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lineage stores immutable snapshots of record sets and answers
// provenance questions about them. Snapshots form a DAG through their
// provenance parents; deleting a snapshot never touches its descendants,
// whose dangling parent ids render as "unknown".
package lineage

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// maxQueryDisplay is the rune length at which search queries are truncated
// in provenance descriptions.
const maxQueryDisplay = 48

// Observer is told about every lineage change.
type Observer interface {
	SnapshotCreated(s types.Snapshot)
	SnapshotDeleted(id string)
}

// Store holds the snapshots of one session, newest first.
type Store struct {
	mu        sync.RWMutex
	snapshots []types.Snapshot
	seq       int
	entropy   io.Reader
	now       func() time.Time
	observer  Observer
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// SetObserver registers o to receive lineage changes.
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// CreateOption customizes Create.
type CreateOption func(*types.Snapshot)

// WithTotalMatched records how many results the source reported in total,
// which may exceed the captured records.
func WithTotalMatched(n int) CreateOption {
	return func(s *types.Snapshot) { s.TotalMatched = n }
}

// Create stores a copy of records under provenance and returns the new
// snapshot's id. Later changes to records never reach the snapshot.
func (s *Store) Create(records []types.Record, prov types.Provenance, label string, opts ...CreateOption) (string, error) {
	if err := prov.Validate(); err != nil {
		return "", apperr.NewValidation("createSnapshot", "%v", err)
	}

	snap := types.Snapshot{
		Label:        strings.TrimSpace(label),
		Provenance:   prov.Clone(),
		Records:      types.CloneRecords(records),
		TotalMatched: len(records),
	}
	if snap.Records == nil {
		snap.Records = []types.Record{}
	}
	for _, opt := range opts {
		opt(&snap)
	}

	s.mu.Lock()
	now := s.now()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("generating snapshot id: %w", err)
	}
	s.seq++
	snap.ID = id.String()
	snap.Seq = s.seq
	snap.CreatedAt = now
	s.snapshots = append([]types.Snapshot{snap}, s.snapshots...)
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		obs.SnapshotCreated(snap.Clone())
	}
	return snap.ID, nil
}

// Import stores an exported snapshot as a new snapshot. It gets a fresh id
// and version; its provenance is kept as exported, so parents that do not
// exist in this store render as unknown.
func (s *Store) Import(snap types.Snapshot) (string, error) {
	return s.Create(snap.Records, snap.Provenance, snap.Label, WithTotalMatched(snap.TotalMatched))
}

// Get returns a copy of the snapshot with id.
func (s *Store) Get(id string) (types.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.snapshots[i].Clone(), true
	}
	return types.Snapshot{}, false
}

// Delete removes one snapshot. Derived snapshots keep their parent ids.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return apperr.NewNotFound("deleteSnapshot", "snapshot", id)
	}
	s.snapshots = append(s.snapshots[:i:i], s.snapshots[i+1:]...)
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		obs.SnapshotDeleted(id)
	}
	return nil
}

// VersionOf returns the display version of id. Versions are assigned once
// at creation and never renumbered.
func (s *Store) VersionOf(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.snapshots[i].Seq, true
	}
	return 0, false
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Summary is a lightweight listing entry.
type Summary struct {
	ID          string               `json:"id"`
	Version     int                  `json:"version"`
	CreatedAt   time.Time            `json:"created_at"`
	Label       string               `json:"label,omitempty"`
	Kind        types.ProvenanceKind `json:"kind"`
	Description string               `json:"description"`
	Records     int                  `json:"records"`
}

// List returns summaries newest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = Summary{
			ID:          snap.ID,
			Version:     snap.Seq,
			CreatedAt:   snap.CreatedAt,
			Label:       snap.Label,
			Kind:        snap.Provenance.Kind,
			Description: s.describe(snap),
			Records:     len(snap.Records),
		}
	}
	return out
}

// Resolve finds a snapshot by id or by "#<version>" / "<version>".
func (s *Store) Resolve(ref string) (types.Snapshot, bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if snap, ok := s.Get(ref); ok {
		return snap, true
	}
	var v int
	if _, err := fmt.Sscanf(ref, "%d", &v); err != nil || fmt.Sprint(v) != ref {
		return types.Snapshot{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.snapshots {
		if snap.Seq == v {
			return snap.Clone(), true
		}
	}
	return types.Snapshot{}, false
}

// Describe renders the provenance of snap. Parents that no longer resolve
// render as "unknown".
func (s *Store) Describe(snap types.Snapshot) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.describe(snap)
}

// describe must be called with s.mu held.
func (s *Store) describe(snap types.Snapshot) string {
	p := snap.Provenance
	switch p.Kind {
	case types.ProvenanceSearch:
		out := fmt.Sprintf("search %q", truncate(p.Query, maxQueryDisplay))
		if p.DateRange != nil && !p.DateRange.IsZero() {
			out += " [" + p.DateRange.String() + "]"
		}
		return out
	case types.ProvenanceFilter:
		return fmt.Sprintf("filtered from #%s: %s", s.parentVersion(p.ParentIDs, 0), p.Description)
	case types.ProvenanceCompare:
		return fmt.Sprintf("compare result (#%s vs #%s): %s",
			s.parentVersion(p.ParentIDs, 0), s.parentVersion(p.ParentIDs, 1), p.Description)
	}
	return "unknown provenance"
}

func (s *Store) parentVersion(parents []string, i int) string {
	if i >= len(parents) {
		return "unknown"
	}
	if j := s.index(parents[i]); j >= 0 {
		return fmt.Sprint(s.snapshots[j].Seq)
	}
	return "unknown"
}

func (s *Store) index(id string) int {
	for i, snap := range s.snapshots {
		if snap.ID == id {
			return i
		}
	}
	return -1
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
