// Package regen implements the regeneration protocol: a regenerate request
// is anchored to the most recent succeeded round of its session, carries
// that round's suggestions and feedback into the prompt, and rejects output
// that repeats them.
package regen

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/replypass/replypass/pkg/reply"
)

// ErrDuplicateOutput is returned when the model keeps repeating a
// suggestion of the previous round after a corrective re-prompt.
var ErrDuplicateOutput = errors.New("regen: suggestions repeat the previous round")

// State is the protocol state of a request.
type State int

// States.
const (
	StateInitial State = iota
	StateRegenerating
)

func (s State) String() string {
	if s == StateRegenerating {
		return "regenerating"
	}
	return "initial"
}

// Config controls duplicate detection.
type Config struct {
	// NormalizeDuplicates additionally treats texts equal after whitespace
	// and case folding as duplicates.
	NormalizeDuplicates bool `yaml:"normalize_duplicates"`
}

// Policy starts rounds.
type Policy struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Policy. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Policy{cfg: cfg, logger: logger}
}

// Begin resolves the round for mode. prior is the most recent succeeded
// generation of the session, or nil. feedback holds records attached to
// prior. A regenerate request without a prior round proceeds as initial.
func (p *Policy) Begin(ctx context.Context, mode reply.Mode, prior *reply.Generation, feedback []reply.FeedbackRecord) Round {
	if mode != reply.ModeRegenerate {
		return Round{State: StateInitial, Number: 1}
	}
	if prior == nil || prior.Status != reply.GenerationSucceeded || len(prior.Suggestions) == 0 {
		p.logger.WarnContext(ctx, "regeneration without a prior round, generating as initial")
		return Round{State: StateInitial, Number: 1}
	}

	latest := make(map[int]reply.FeedbackRecord, len(feedback))
	for _, f := range feedback {
		if f.GenerationID != prior.ID {
			continue
		}
		if cur, ok := latest[f.SuggestionIndex]; !ok || f.Seq > cur.Seq {
			latest[f.SuggestionIndex] = f
		}
	}
	return Round{
		State:     StateRegenerating,
		Number:    prior.Round + 1,
		Prior:     prior,
		feedback:  latest,
		normalize: p.cfg.NormalizeDuplicates,
	}
}

// Round is the regeneration state of one request.
type Round struct {
	State  State
	Number int
	Prior  *reply.Generation // nil in StateInitial

	feedback  map[int]reply.FeedbackRecord
	normalize bool
}

// PreviousID returns the ID of the round being regenerated, if any.
func (r Round) PreviousID() string {
	if r.Prior == nil {
		return ""
	}
	return r.Prior.ID
}

// PriorSuggestion is a previous suggestion with its feedback label.
type PriorSuggestion struct {
	Category string
	Text     string
	Label    string
}

// Exclusion is the prompt context of a regeneration.
type Exclusion struct {
	Previous []PriorSuggestion
}

// Exclusion returns the previous round's suggestions labeled with their most
// recent feedback, or nil for an initial round.
func (r Round) Exclusion() *Exclusion {
	if r.State != StateRegenerating {
		return nil
	}
	ex := &Exclusion{Previous: make([]PriorSuggestion, 0, len(r.Prior.Suggestions))}
	for _, s := range r.Prior.Suggestions {
		label := reply.FeedbackRecord{}.Describe()
		if f, ok := r.feedback[s.Index]; ok {
			label = f.Describe()
		}
		ex.Previous = append(ex.Previous, PriorSuggestion{Category: s.Category, Text: s.Text, Label: label})
	}
	return ex
}

// Duplicates returns the indices of suggestions whose text repeats a
// previous suggestion.
func (r Round) Duplicates(suggestions []reply.Suggestion) []int {
	if r.State != StateRegenerating {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Prior.Suggestions))
	for _, s := range r.Prior.Suggestions {
		seen[r.key(s.Text)] = struct{}{}
	}
	var dup []int
	for i, s := range suggestions {
		if _, ok := seen[r.key(s.Text)]; ok {
			dup = append(dup, i)
		}
	}
	return dup
}

func (r Round) key(text string) string {
	if !r.normalize {
		return text
	}
	return Normalize(text)
}

// Normalize folds case and collapses Unicode whitespace runs.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " "))
}
