// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strconv"
)

// OutputType is the value kind an enrichment column produces.
type OutputType string

const (
	OutputText    OutputType = "text"
	OutputNumber  OutputType = "number"
	OutputBoolean OutputType = "boolean"
)

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	switch t {
	case OutputText, OutputNumber, OutputBoolean:
		return true
	}
	return false
}

// CellValue is one computed enrichment value. Exactly one of Text, Number,
// or Bool is meaningful for a given OutputType; Err marks the error sentinel
// written when the column's computation failed.
type CellValue struct {
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
	Number    *float64 `json:"number,omitempty" yaml:"number,omitempty"`
	Bool      *bool    `json:"bool,omitempty" yaml:"bool,omitempty"`
	Reasoning string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Err       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// ErrorValue returns the sentinel value for a failed computation.
func ErrorValue(msg string) CellValue {
	if msg == "" {
		msg = "error"
	}
	return CellValue{Err: msg}
}

// IsError reports whether v is the error sentinel.
func (v CellValue) IsError() bool { return v.Err != "" }

// String renders the value for a table cell.
func (v CellValue) String() string {
	switch {
	case v.Err != "":
		return "ERROR"
	case v.Bool != nil:
		if *v.Bool {
			return "yes"
		}
		return "no"
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'g', 4, 64)
	default:
		return v.Text
	}
}

// EnrichmentColumn is a user-defined derived attribute computed
// asynchronously over the record set. Values is keyed by Record.ID and is
// the only column state that survives record-set growth.
type EnrichmentColumn struct {
	ID             string               `json:"id" yaml:"id"`
	Label          string               `json:"label" yaml:"label"`
	OutputType     OutputType           `json:"output_type" yaml:"output_type"`
	PromptTemplate string               `json:"prompt_template" yaml:"prompt_template"`
	InputFields    []string             `json:"input_fields,omitempty" yaml:"input_fields,omitempty"`
	Values         map[string]CellValue `json:"values" yaml:"values"`
}

// Clone returns a copy of c with its own Values map.
func (c EnrichmentColumn) Clone() EnrichmentColumn {
	out := c
	out.InputFields = append([]string(nil), c.InputFields...)
	out.Values = make(map[string]CellValue, len(c.Values))
	for k, v := range c.Values {
		out.Values[k] = v
	}
	return out
}

// EnrichmentResult is one row returned by an enrichment provider. Passed,
// Score, and Value are optional; which is set depends on the output type.
type EnrichmentResult struct {
	ID        string   `json:"id"`
	Passed    *bool    `json:"passed,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Value     string   `json:"value,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// CellValue converts the provider row into a cell of the given type.
func (r EnrichmentResult) CellValue(t OutputType) CellValue {
	v := CellValue{Reasoning: r.Reasoning}
	switch t {
	case OutputBoolean:
		if r.Passed != nil {
			b := *r.Passed
			v.Bool = &b
		} else {
			v.Text = r.Value
		}
	case OutputNumber:
		if r.Score != nil {
			n := *r.Score
			v.Number = &n
		} else if f, err := strconv.ParseFloat(r.Value, 64); err == nil {
			v.Number = &f
		} else {
			v.Text = r.Value
		}
	default:
		v.Text = r.Value
		if v.Text == "" && r.Passed != nil {
			v.Text = fmt.Sprint(*r.Passed)
		}
	}
	return v
}

// FilterResult is the provider verdict for one row of a filter request.
type FilterResult struct {
	ID         string  `json:"id"`
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Strictness controls how conservative a filter provider is.
type Strictness string

const (
	StrictnessLenient  Strictness = "lenient"
	StrictnessBalanced Strictness = "balanced"
	StrictnessStrict   Strictness = "strict"
)

// Valid reports whether s is a known strictness level.
func (s Strictness) Valid() bool {
	switch s {
	case StrictnessLenient, StrictnessBalanced, StrictnessStrict:
		return true
	}
	return false
}

// Progress reports how many rows of a run have been processed.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
