// Package suggest parses and validates model output into suggestions.
package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/replypass/replypass/pkg/reply"
)

// Defect describes why raw model output could not be used. Its message is
// fed back to the model in the corrective re-prompt.
type Defect struct {
	Reason string
}

func (d *Defect) Error() string { return d.Reason }

func defectf(format string, args ...any) *Defect {
	return &Defect{Reason: fmt.Sprintf(format, args...)}
}

type rawSuggestion struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Parse extracts exactly reply.SuggestionCount suggestions from raw model
// output. Code fences and text around the JSON array are ignored. Unknown
// fields, blank categories and blank texts are defects.
func Parse(raw string) ([]reply.Suggestion, *Defect) {
	body := stripFences(raw)
	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end <= start {
		return nil, defectf("no JSON array found in the answer")
	}

	dec := json.NewDecoder(strings.NewReader(body[start : end+1]))
	dec.DisallowUnknownFields()
	var items []rawSuggestion
	if err := dec.Decode(&items); err != nil {
		return nil, defectf("the JSON array is malformed: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, defectf("unexpected content after the JSON array")
	}
	if len(items) != reply.SuggestionCount {
		return nil, defectf("expected %d suggestions, got %d", reply.SuggestionCount, len(items))
	}

	out := make([]reply.Suggestion, len(items))
	for i, it := range items {
		category, text := strings.TrimSpace(it.Category), strings.TrimSpace(it.Text)
		if category == "" {
			return nil, defectf("suggestion %d has an empty category", i+1)
		}
		if text == "" {
			return nil, defectf("suggestion %d has an empty text", i+1)
		}
		out[i] = reply.Suggestion{Index: i, Category: category, Text: text}
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
