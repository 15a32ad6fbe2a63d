// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity scores how likely two records describe the same work.
// Scoring is pure: it reads both records and returns numbers, nothing else.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

const (
	// maxTitleTokens caps how many content tokens of a title are compared.
	maxTitleTokens = 10

	// minSubstringAuthor is the rune length the shorter name must exceed
	// for a substring match to count.
	minSubstringAuthor = 4

	titleWeight  = 0.6
	authorWeight = 0.3
	yearWeight   = 0.1
)

// stopWords are dropped from titles before comparison.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "to": true, "with": true, "by": true,
	"at": true, "from": true, "is": true, "are": true, "as": true, "its": true,
	"into": true, "vs": true, "versus": true, "via": true, "after": true,
	"among": true, "between": true, "during": true, "than": true, "that": true,
	"this": true, "be": true, "was": true, "were": true, "not": true,
}

// Scores holds the component similarities of a record pair, each in [0,1].
type Scores struct {
	Title   float64 `json:"title"`
	Author  float64 `json:"author"`
	Year    float64 `json:"year"`
	Overall float64 `json:"overall"`
}

// Score compares two records.
func Score(a, b types.Record) Scores {
	s := Scores{
		Title:  TitleSimilarity(a.Title, b.Title),
		Author: AuthorSimilarity(a.Authors, b.Authors),
		Year:   YearSimilarity(a.PublicationYear, b.PublicationYear),
	}
	s.Overall = titleWeight*s.Title + authorWeight*s.Author + yearWeight*s.Year
	return s
}

// TitleSimilarity is the Jaccard similarity of the titles' leading content
// tokens. Two titles with no content tokens score 0.
func TitleSimilarity(a, b string) float64 {
	ta := titleTokens(a)
	tb := titleTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// AuthorSimilarity counts authors of a that match some author of b and
// divides by the longer list. Empty lists score 0.
func AuthorSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	nb := make([]string, len(b))
	for i, name := range b {
		nb[i] = normalizeAuthor(name)
	}
	matches := 0
	for _, name := range a {
		na := normalizeAuthor(name)
		for _, other := range nb {
			if authorsMatch(na, other) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(max(len(a), len(b)))
}

// YearSimilarity is 0.5 when either year is unknown, otherwise it decays
// with the distance between the years.
func YearSimilarity(a, b *int) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	diff := *a - *b
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return 1.0
	case diff == 1:
		return 0.8
	case diff <= 2:
		return 0.5
	default:
		return 0
	}
}

// NormalizeTitle lowercases the title, replaces punctuation with spaces,
// and collapses whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func titleTokens(title string) map[string]bool {
	toks := make(map[string]bool, maxTitleTokens)
	kept := 0
	for _, tok := range strings.Fields(NormalizeTitle(title)) {
		if stopWords[tok] {
			continue
		}
		toks[tok] = true
		kept++
		if kept == maxTitleTokens {
			break
		}
	}
	return toks
}

func normalizeAuthor(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimRightFunc(name, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

func authorsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	shorter, longer := a, b
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	return utf8.RuneCountInString(shorter) > minSubstringAuthor && strings.Contains(longer, shorter)
}
