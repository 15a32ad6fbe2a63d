// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup flags secondary-source records that probably duplicate a
// primary-source record. It only flags: records are never merged or dropped.
package dedup

import (
	"github.com/pdiddy/reconcile-engine/internal/similarity"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Reasons attached to duplicate verdicts.
const (
	ReasonTitle            = "very similar title"
	ReasonTitleAuthors     = "similar title and authors"
	ReasonTitleAuthorsYear = "title/author/year agreement"
)

// rule is one step of the duplicate cascade.
type rule struct {
	reason string
	match  func(similarity.Scores) bool
}

// cascade is evaluated in order; the first matching rule decides.
var cascade = []rule{
	{ReasonTitle, func(s similarity.Scores) bool { return s.Title >= 0.85 }},
	{ReasonTitleAuthors, func(s similarity.Scores) bool { return s.Title >= 0.70 && s.Author >= 0.50 }},
	{ReasonTitleAuthorsYear, func(s similarity.Scores) bool {
		return s.Title >= 0.60 && s.Author >= 0.70 && s.Year >= 0.80
	}},
}

// Verdict applies the cascade to one score set.
func Verdict(s similarity.Scores) (bool, string) {
	for _, r := range cascade {
		if r.match(s) {
			return true, r.reason
		}
	}
	return false, ""
}

// Annotate returns one annotation per candidate, in candidate order.
// Secondary-source candidates are compared against the primary-source
// records of reference; every other candidate gets an empty annotation.
// The best overall match is kept even when no rule fires, and the verdict
// comes from the first reference record, in reference order, that
// satisfies the cascade.
func Annotate(candidates, reference []types.Record) []types.DuplicateAnnotation {
	primary := make([]types.Record, 0, len(reference))
	for _, r := range reference {
		if r.Source == types.SourcePrimary {
			primary = append(primary, r)
		}
	}

	out := make([]types.DuplicateAnnotation, len(candidates))
	for i, c := range candidates {
		out[i] = types.DuplicateAnnotation{RecordID: c.ID}
		if c.Source != types.SourceSecondary {
			continue
		}
		annotateOne(&out[i], c, primary)
	}
	return out
}

func annotateOne(a *types.DuplicateAnnotation, c types.Record, primary []types.Record) {
	best := -1.0
	for _, ref := range primary {
		s := similarity.Score(c, ref)
		if s.Overall > best {
			best = s.Overall
			a.MatchedRecord = &types.RecordRef{ID: ref.ID, Source: ref.Source}
			a.SimilarityScore = s.Overall
		}
		if !a.IsDuplicate {
			a.IsDuplicate, a.Reason = Verdict(s)
		}
	}
}

// Summary counts flagged records.
type Summary struct {
	Compared   int `json:"compared"`
	Duplicates int `json:"duplicates"`
}

// Summarize counts the annotations that were compared and flagged.
func Summarize(annotations []types.DuplicateAnnotation) Summary {
	var s Summary
	for _, a := range annotations {
		if a.MatchedRecord != nil {
			s.Compared++
		}
		if a.IsDuplicate {
			s.Duplicates++
		}
	}
	return s
}

// Index maps record ids to their annotation.
func Index(annotations []types.DuplicateAnnotation) map[string]types.DuplicateAnnotation {
	m := make(map[string]types.DuplicateAnnotation, len(annotations))
	for _, a := range annotations {
		m[a.RecordID] = a
	}
	return m
}
