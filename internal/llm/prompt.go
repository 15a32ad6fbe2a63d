// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// defaultFields are the payload fields shown to the model when a column
// does not name its own.
var defaultFields = []string{"abstract", "journal", "publication_types"}

// enrichPromptTmpl wraps a column instruction with one record and the reply
// format for the column's output type.
var enrichPromptTmpl = template.Must(template.New("enrich").Parse(`You are annotating one bibliographic record for a literature review.

Record:
{{template "record" .Record}}
Task:
{{.Instruction}}

{{.Format}} Do not include any text outside the JSON object.
`))

// filterPromptTmpl asks for a screening verdict on one record.
var filterPromptTmpl = template.Must(template.New("filter").Parse(`You are screening bibliographic records for a literature review. Decide whether the record below satisfies the inclusion condition.

Condition: {{.Condition}}
Strictness: {{.Strictness}}. {{.Guidance}}

Record:
{{template "record" .Record}}
Respond with a JSON object: {"passed": true or false, "confidence": a number from 0 to 1, "reasoning": one sentence}. Do not include any text outside the JSON object.
`))

const recordTmpl = `{{define "record"}}Title: {{.Title}}
{{with .Authors}}Authors: {{.}}
{{end}}{{with .Year}}Year: {{.}}
{{end}}{{range .Fields}}{{.Name}}: {{.Value}}
{{end}}{{end}}`

func init() {
	template.Must(enrichPromptTmpl.Parse(recordTmpl))
	template.Must(filterPromptTmpl.Parse(recordTmpl))
}

var formatByType = map[types.OutputType]string{
	types.OutputBoolean: `Respond with a JSON object: {"passed": true or false, "reasoning": one sentence}.`,
	types.OutputNumber:  `Respond with a JSON object: {"score": a number, "reasoning": one sentence}. Use null for score when the record does not say.`,
	types.OutputText:    `Respond with a JSON object: {"value": a short answer, "reasoning": one sentence}.`,
}

var guidanceByStrictness = map[types.Strictness]string{
	types.StrictnessLenient:  "Include the record unless it clearly fails the condition.",
	types.StrictnessBalanced: "Include the record when it more likely than not satisfies the condition.",
	types.StrictnessStrict:   "Include the record only when it explicitly satisfies the condition.",
}

// RecordView is the value column templates execute against, so an
// instruction can reference {{.Title}}, {{.Authors}}, {{.Year}} or
// {{.Field "abstract"}}.
type RecordView struct {
	rec    types.Record
	Fields []FieldValue
}

// FieldValue is one payload field shown to the model.
type FieldValue struct {
	Name  string
	Value string
}

func newRecordView(r types.Record, inputFields []string) RecordView {
	names := inputFields
	if len(names) == 0 {
		names = defaultFields
	}
	v := RecordView{rec: r}
	for _, name := range names {
		if s := r.Field(name); s != "" {
			v.Fields = append(v.Fields, FieldValue{Name: name, Value: s})
		}
	}
	return v
}

// Title returns the record title.
func (v RecordView) Title() string { return v.rec.Title }

// Authors returns the authors joined with commas.
func (v RecordView) Authors() string { return strings.Join(v.rec.Authors, ", ") }

// Year returns the publication year, or "" when unknown.
func (v RecordView) Year() string {
	if y, ok := v.rec.Year(); ok {
		return strconv.Itoa(y)
	}
	return ""
}

// Field returns a payload or core field rendered as text.
func (v RecordView) Field(name string) string { return v.rec.Field(name) }

// compileInstruction parses a column prompt as a template. Prompts without
// actions render unchanged.
func compileInstruction(prompt string) (*template.Template, error) {
	t, err := template.New("column").Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return nil, apperr.NewValidation("addColumn", "invalid column prompt: %v", err)
	}
	return t, nil
}

func renderEnrichPrompt(instr *template.Template, view RecordView, outputType types.OutputType) (string, error) {
	var ib bytes.Buffer
	if err := instr.Execute(&ib, view); err != nil {
		return "", fmt.Errorf("rendering column prompt: %w", err)
	}
	var buf bytes.Buffer
	err := enrichPromptTmpl.Execute(&buf, struct {
		Record      RecordView
		Instruction string
		Format      string
	}{view, strings.TrimSpace(ib.String()), formatByType[outputType]})
	if err != nil {
		return "", fmt.Errorf("rendering enrichment prompt: %w", err)
	}
	return buf.String(), nil
}

func renderFilterPrompt(view RecordView, condition string, strictness types.Strictness) (string, error) {
	var buf bytes.Buffer
	err := filterPromptTmpl.Execute(&buf, struct {
		Record     RecordView
		Condition  string
		Strictness types.Strictness
		Guidance   string
	}{view, condition, strictness, guidanceByStrictness[strictness]})
	if err != nil {
		return "", fmt.Errorf("rendering filter prompt: %w", err)
	}
	return buf.String(), nil
}
