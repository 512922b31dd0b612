// Package reply defines the data contract shared by the generation engine,
// its storage backends, and the HTTP gateway: personas, conversation
// messages, feedback, generation requests and their typed outcomes.
package reply

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxReferenceRunes caps the raw reference text stored on a persona.
const MaxReferenceRunes = 5000

// Casualness bounds.
const (
	MinCasualness = 1
	MaxCasualness = 5
)

// EmojiTier describes how often the persona uses emoji.
type EmojiTier string

// Supported emoji tiers, from least to most frequent.
const (
	EmojiNone     EmojiTier = "none"
	EmojiMinimal  EmojiTier = "minimal"
	EmojiNormal   EmojiTier = "normal"
	EmojiFrequent EmojiTier = "frequent"
	EmojiHeavy    EmojiTier = "heavy"
)

// Valid reports whether t is a known tier.
func (t EmojiTier) Valid() bool {
	switch t {
	case EmojiNone, EmojiMinimal, EmojiNormal, EmojiFrequent, EmojiHeavy:
		return true
	}
	return false
}

// HonorificUse controls whether replies use honorific/polite forms.
type HonorificUse string

// Honorific settings.
const (
	HonorificAlways    HonorificUse = "always"
	HonorificSometimes HonorificUse = "sometimes"
	HonorificNever     HonorificUse = "never"
)

// ResponseLength is the desired length of each suggestion.
type ResponseLength string

// Response lengths.
const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// HumorLevel is how much humor the persona injects.
type HumorLevel string

// Humor levels.
const (
	HumorNone     HumorLevel = "none"
	HumorLight    HumorLevel = "light"
	HumorModerate HumorLevel = "moderate"
	HumorHeavy    HumorLevel = "heavy"
)

// QuickSettings are the structured knobs a user sets directly on a persona.
// Empty values mean "not specified" and are omitted from the prompt.
type QuickSettings struct {
	Honorifics     HonorificUse   `json:"honorifics,omitempty" yaml:"honorifics,omitempty"`
	ResponseLength ResponseLength `json:"response_length,omitempty" yaml:"response_length,omitempty"`
	ThinkingStyle  string         `json:"thinking_style,omitempty" yaml:"thinking_style,omitempty"`
	HumorLevel     HumorLevel     `json:"humor_level,omitempty" yaml:"humor_level,omitempty"`
}

// IsEmpty reports whether no quick setting is specified.
func (q QuickSettings) IsEmpty() bool {
	return q == QuickSettings{}
}

// Persona is the stored communication style for one case.
// A case has at most one persona.
type Persona struct {
	ID            string        `json:"id"`
	CaseID        string        `json:"case_id"`
	Casualness    int           `json:"casualness"`
	EmojiUsage    EmojiTier     `json:"emoji_usage"`
	ReferenceText string        `json:"reference_text"`
	QuickSettings QuickSettings `json:"quick_settings"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks the persona invariants.
func (p Persona) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("reply: persona id is required"))
	}
	if p.CaseID == "" {
		errs = append(errs, errors.New("reply: persona case_id is required"))
	}
	if p.Casualness < MinCasualness || p.Casualness > MaxCasualness {
		errs = append(errs, fmt.Errorf("reply: casualness must be %d-%d, got %d", MinCasualness, MaxCasualness, p.Casualness))
	}
	if !p.EmojiUsage.Valid() {
		errs = append(errs, fmt.Errorf("reply: unknown emoji tier %q", p.EmojiUsage))
	}
	if n := utf8.RuneCountInString(p.ReferenceText); n > MaxReferenceRunes {
		errs = append(errs, fmt.Errorf("reply: reference text is %d characters, max %d", n, MaxReferenceRunes))
	}
	return errors.Join(errs...)
}

// PersonaAnalysis is the cached, AI-derived interpretation of a persona's
// reference text. It is produced offline and never regenerated implicitly.
type PersonaAnalysis struct {
	PersonaID   string    `json:"persona_id"`
	Personality string    `json:"personality"`
	Patterns    string    `json:"patterns"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}
