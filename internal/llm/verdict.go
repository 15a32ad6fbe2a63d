// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// verdict is the JSON object the prompts ask the model to return. Value is
// kept raw because models answer text columns with strings, numbers or
// booleans alike.
type verdict struct {
	Passed     *bool           `json:"passed"`
	Score      *float64        `json:"score"`
	Confidence *float64        `json:"confidence"`
	Value      json.RawMessage `json:"value"`
	Reasoning  string          `json:"reasoning"`
}

// parseVerdict extracts the first JSON object from a reply, tolerating
// markdown fences and surrounding prose.
func parseVerdict(reply string) (verdict, error) {
	obj := extractObject(reply)
	if obj == "" {
		return verdict{}, fmt.Errorf("no JSON object in reply")
	}
	var v verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return verdict{}, fmt.Errorf("parsing reply JSON: %w", err)
	}
	return v, nil
}

// extractObject returns the outermost {...} span of text, or "".
func extractObject(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if body, _, found := strings.Cut(rest, "```"); found {
			text = strings.TrimSpace(body)
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

// value renders the raw value as text: strings unquoted, anything else as
// its JSON literal.
func (v verdict) value() string {
	raw := strings.TrimSpace(string(v.Value))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	return raw
}

func (v verdict) enrichmentResult(id string, t types.OutputType) types.EnrichmentResult {
	r := types.EnrichmentResult{
		ID:        id,
		Passed:    v.Passed,
		Score:     v.Score,
		Value:     v.value(),
		Reasoning: v.Reasoning,
	}
	switch t {
	case types.OutputNumber:
		if r.Score == nil && r.Value != "" {
			if f, err := strconv.ParseFloat(r.Value, 64); err == nil {
				r.Score = &f
			}
		}
	case types.OutputBoolean:
		if r.Passed == nil && r.Value != "" {
			if b, err := strconv.ParseBool(r.Value); err == nil {
				r.Passed = &b
			}
		}
	}
	return r
}
