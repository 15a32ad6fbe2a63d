// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lineage

import (
	"fmt"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Partition names one part of a comparison.
type Partition string

const (
	OnlyInA Partition = "only-a"
	OnlyInB Partition = "only-b"
	InBoth  Partition = "both"
)

// ParsePartition accepts the partition names used on the command line.
func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case OnlyInA, OnlyInB, InBoth:
		return Partition(s), nil
	}
	return "", apperr.NewValidation("compare", "unknown partition %q: want only-a, only-b, or both", s)
}

// Comparison is the set relation between the record ids of two snapshots.
// OnlyInA and InBoth follow A's order, OnlyInB follows B's.
type Comparison struct {
	A        string   `json:"a"`
	B        string   `json:"b"`
	VersionA int      `json:"version_a"`
	VersionB int      `json:"version_b"`
	OnlyInA  []string `json:"only_in_a"`
	OnlyInB  []string `json:"only_in_b"`
	InBoth   []string `json:"in_both"`

	records map[string]types.Record
}

// Compare partitions the record ids of snapshots a and b.
func (s *Store) Compare(a, b string) (Comparison, error) {
	sa, ok := s.Get(a)
	if !ok {
		return Comparison{}, apperr.NewNotFound("compare", "snapshot", a)
	}
	sb, ok := s.Get(b)
	if !ok {
		return Comparison{}, apperr.NewNotFound("compare", "snapshot", b)
	}
	return CompareSnapshots(sa, sb), nil
}

// CompareSnapshots partitions two snapshots that are already loaded.
func CompareSnapshots(a, b types.Snapshot) Comparison {
	c := Comparison{
		A:        a.ID,
		B:        b.ID,
		VersionA: a.Seq,
		VersionB: b.Seq,
		OnlyInA:  []string{},
		OnlyInB:  []string{},
		InBoth:   []string{},
		records:  make(map[string]types.Record, len(a.Records)+len(b.Records)),
	}

	idsB := make(map[string]bool, len(b.Records))
	for _, r := range b.Records {
		idsB[r.ID] = true
	}
	idsA := make(map[string]bool, len(a.Records))
	for _, r := range a.Records {
		if idsA[r.ID] {
			continue
		}
		idsA[r.ID] = true
		c.records[r.ID] = r
		if idsB[r.ID] {
			c.InBoth = append(c.InBoth, r.ID)
		} else {
			c.OnlyInA = append(c.OnlyInA, r.ID)
		}
	}
	seenB := make(map[string]bool, len(b.Records))
	for _, r := range b.Records {
		if seenB[r.ID] {
			continue
		}
		seenB[r.ID] = true
		if _, ok := c.records[r.ID]; !ok {
			c.records[r.ID] = r
		}
		if !idsA[r.ID] {
			c.OnlyInB = append(c.OnlyInB, r.ID)
		}
	}
	return c
}

// IDs returns the ids of one partition.
func (c Comparison) IDs(p Partition) []string {
	switch p {
	case OnlyInA:
		return c.OnlyInA
	case OnlyInB:
		return c.OnlyInB
	default:
		return c.InBoth
	}
}

// Records resolves a partition back to full records, taken from A when the
// record is in A and from B otherwise.
func (c Comparison) Records(p Partition) []types.Record {
	ids := c.IDs(p)
	out := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Describe names a partition for the provenance of a saved comparison.
func (c Comparison) Describe(p Partition) string {
	switch p {
	case OnlyInA:
		return fmt.Sprintf("only in #%d", c.VersionA)
	case OnlyInB:
		return fmt.Sprintf("only in #%d", c.VersionB)
	default:
		return fmt.Sprintf("in both #%d and #%d", c.VersionA, c.VersionB)
	}
}

// SavePartition stores one partition of c as a Compare snapshot.
func (s *Store) SavePartition(c Comparison, p Partition, label string) (string, error) {
	prov := types.CompareProvenance(c.A, c.B, c.Describe(p))
	return s.Create(c.Records(p), prov, label)
}
