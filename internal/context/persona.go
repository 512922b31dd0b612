package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

// PersonaSource reads a case's persona and its cached analysis.
type PersonaSource interface {
	Persona(ctx context.Context, caseID string) (reply.Persona, error)
	PersonaAnalysis(ctx context.Context, personaID string) (reply.PersonaAnalysis, error)
}

// PersonaBuilder merges quick settings, the cached analysis and the raw
// reference text into a PersonaContext.
type PersonaBuilder struct {
	src PersonaSource
}

// NewPersonaBuilder creates a PersonaBuilder reading from src.
func NewPersonaBuilder(src PersonaSource) *PersonaBuilder {
	return &PersonaBuilder{src: src}
}

// PersonaMaterial is the unbudgeted persona input.
type PersonaMaterial struct {
	Persona  reply.Persona
	Analysis *reply.PersonaAnalysis // nil when no analysis exists
}

// PersonaContext is the persona block handed to the prompt assembler.
type PersonaContext struct {
	Persona          reply.Persona
	Analysis         *reply.PersonaAnalysis
	ReferenceExcerpt string
	Truncated        bool
}

// Load fetches the persona of a case and its analysis. A missing analysis
// is not an error.
func (b *PersonaBuilder) Load(ctx context.Context, caseID string) (*PersonaMaterial, error) {
	p, err := b.src.Persona(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("ctxengine: loading persona for case %s: %w", caseID, err)
	}
	m := &PersonaMaterial{Persona: p}

	a, err := b.src.PersonaAnalysis(ctx, p.ID)
	switch {
	case err == nil:
		m.Analysis = &a
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("ctxengine: loading analysis for persona %s: %w", p.ID, err)
	}
	return m, nil
}

// Build loads and fits in one step.
func (b *PersonaBuilder) Build(ctx context.Context, caseID string, referenceCeiling int) (PersonaContext, error) {
	m, err := b.Load(ctx, caseID)
	if err != nil {
		return PersonaContext{}, err
	}
	return m.Fit(referenceCeiling), nil
}

// FixedSize is the character size of the analysis, which is always
// included verbatim.
func (m *PersonaMaterial) FixedSize() int {
	if m.Analysis == nil {
		return 0
	}
	return utf8.RuneCountInString(m.Analysis.Personality) + utf8.RuneCountInString(m.Analysis.Patterns)
}

// Size is the full character size of the persona material.
func (m *PersonaMaterial) Size() int {
	return m.FixedSize() + utf8.RuneCountInString(m.Persona.ReferenceText)
}

// Fit returns the persona context with the reference text cut to
// referenceCeiling characters.
func (m *PersonaMaterial) Fit(referenceCeiling int) PersonaContext {
	excerpt, truncated := Excerpt(m.Persona.ReferenceText, referenceCeiling)
	return PersonaContext{
		Persona:          m.Persona,
		Analysis:         m.Analysis,
		ReferenceExcerpt: excerpt,
		Truncated:        truncated,
	}
}

// Excerpt returns the longest prefix of text of at most maxRunes characters
// ending on a sentence or line boundary, whichever is later. Without either,
// it falls back to the last word boundary. A text with no usable boundary
// yields an empty excerpt. The boolean reports whether text was shortened.
func Excerpt(text string, maxRunes int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text, false
	}
	if maxRunes <= 0 {
		return "", true
	}

	cut := max(sentenceCut(runes, maxRunes), lineCut(runes, maxRunes))
	if cut <= 0 {
		cut = wordCut(runes, maxRunes)
	}
	if cut <= 0 {
		return "", true
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace), true
}

// sentenceCut returns the end index of the last sentence within limit, or 0.
func sentenceCut(runes []rune, limit int) int {
	for i := limit - 1; i >= 0; i-- {
		switch runes[i] {
		case '。', '！', '？':
			return i + 1
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

// lineCut returns the index of the last newline within limit, or 0.
func lineCut(runes []rune, limit int) int {
	for i := limit - 1; i > 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return 0
}

// wordCut returns the last index within limit that does not split a word.
func wordCut(runes []rune, limit int) int {
	if unicode.IsSpace(runes[limit]) {
		return limit
	}
	for i := limit - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return 0
}
