// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// ProvenanceKind says how a snapshot was produced.
type ProvenanceKind string

const (
	ProvenanceSearch  ProvenanceKind = "search"
	ProvenanceFilter  ProvenanceKind = "filter"
	ProvenanceCompare ProvenanceKind = "compare"
)

// SourceType selects which sources a search queried.
type SourceType string

const (
	SourceTypeAll       SourceType = "all"
	SourceTypePrimary   SourceType = "primary"
	SourceTypeSecondary SourceType = "secondary"
)

// Includes reports whether the source type covers src.
func (t SourceType) Includes(src Source) bool {
	switch t {
	case SourceTypePrimary:
		return src == SourcePrimary
	case SourceTypeSecondary:
		return src == SourceSecondary
	default:
		return true
	}
}

// ParseSourceType converts a flag value, treating "" as all.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case "", SourceTypeAll:
		return SourceTypeAll, nil
	case SourceTypePrimary, SourceTypeSecondary:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q: want all, primary, or secondary", s)
}

// DateRange bounds a search by publication date. Zero ends are open.
type DateRange struct {
	From time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	To   time.Time `json:"to,omitempty" yaml:"to,omitempty"`
}

// IsZero reports whether neither end is set.
func (d DateRange) IsZero() bool { return d.From.IsZero() && d.To.IsZero() }

// String renders the range as "2019-01-01..2023-12-31" with open ends left blank.
func (d DateRange) String() string {
	if d.IsZero() {
		return ""
	}
	var from, to string
	if !d.From.IsZero() {
		from = d.From.Format("2006-01-02")
	}
	if !d.To.IsZero() {
		to = d.To.Format("2006-01-02")
	}
	return from + ".." + to
}

// Provenance describes how a snapshot was derived. Search snapshots are
// roots; Filter snapshots have one parent and Compare snapshots two.
type Provenance struct {
	Kind ProvenanceKind `json:"kind" yaml:"kind"`

	// Search fields.
	Query      string     `json:"query,omitempty" yaml:"query,omitempty"`
	DateRange  *DateRange `json:"date_range,omitempty" yaml:"date_range,omitempty"`
	SourceType SourceType `json:"source_type,omitempty" yaml:"source_type,omitempty"`

	// ParentIDs holds one id for Filter and two for Compare.
	ParentIDs   []string `json:"parent_ids,omitempty" yaml:"parent_ids,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// SearchProvenance builds the provenance of a raw search.
func SearchProvenance(query string, dates DateRange, sourceType SourceType) Provenance {
	p := Provenance{Kind: ProvenanceSearch, Query: query, SourceType: sourceType}
	if !dates.IsZero() {
		d := dates
		p.DateRange = &d
	}
	return p
}

// FilterProvenance builds the provenance of a filtered derivative.
func FilterProvenance(parentID, description string) Provenance {
	return Provenance{Kind: ProvenanceFilter, ParentIDs: []string{parentID}, Description: description}
}

// CompareProvenance builds the provenance of a saved comparison partition.
func CompareProvenance(parentA, parentB, description string) Provenance {
	return Provenance{Kind: ProvenanceCompare, ParentIDs: []string{parentA, parentB}, Description: description}
}

// Validate checks that the parent count matches the kind.
func (p Provenance) Validate() error {
	switch p.Kind {
	case ProvenanceSearch:
		if len(p.ParentIDs) != 0 {
			return fmt.Errorf("search provenance cannot have parents")
		}
	case ProvenanceFilter:
		if len(p.ParentIDs) != 1 || p.ParentIDs[0] == "" {
			return fmt.Errorf("filter provenance needs exactly one parent")
		}
	case ProvenanceCompare:
		if len(p.ParentIDs) != 2 || p.ParentIDs[0] == "" || p.ParentIDs[1] == "" {
			return fmt.Errorf("compare provenance needs exactly two parents")
		}
	default:
		return fmt.Errorf("unknown provenance kind %q", p.Kind)
	}
	return nil
}

// Clone returns a copy of p with its own slices.
func (p Provenance) Clone() Provenance {
	out := p
	out.ParentIDs = append([]string(nil), p.ParentIDs...)
	if p.DateRange != nil {
		d := *p.DateRange
		out.DateRange = &d
	}
	return out
}

// Snapshot is an immutable capture of a record set. It owns its records:
// nothing outside the lineage store holds a reference into them.
type Snapshot struct {
	ID string `json:"id" yaml:"id"`

	// Seq is the display version, assigned once at creation.
	Seq int `json:"seq" yaml:"seq"`

	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	Label        string     `json:"label,omitempty" yaml:"label,omitempty"`
	Provenance   Provenance `json:"provenance" yaml:"provenance"`
	Records      []Record   `json:"records" yaml:"records"`
	TotalMatched int        `json:"total_matched" yaml:"total_matched"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Provenance = s.Provenance.Clone()
	out.Records = CloneRecords(s.Records)
	return out
}
