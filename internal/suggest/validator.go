package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/replypass/replypass/pkg/reply"
)

// ErrInvalidOutput is returned when the model output is still unusable
// after one corrective re-prompt.
var ErrInvalidOutput = errors.New("suggest: model output failed validation")

// Reprompter builds the corrective prompt from the original prompt, the
// rejected answer and a description of its defect.
type Reprompter interface {
	Correction(prompt, raw, defect string) string
}

// GenerateFunc sends a prompt to the model and returns its raw answer.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Outcome is a validated set of suggestions.
type Outcome struct {
	Suggestions []reply.Suggestion
	Raw         string // the answer the suggestions were parsed from
	Corrected   bool   // a corrective re-prompt was needed
}

// Validator parses model output, issuing at most one corrective re-prompt
// per call.
type Validator struct {
	rp     Reprompter
	logger *slog.Logger
}

// NewValidator creates a Validator. A nil logger discards output.
func NewValidator(rp Reprompter, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{rp: rp, logger: logger}
}

// Validate parses raw. On a defect it asks the model once to correct its
// answer through generate. A second defect yields ErrInvalidOutput. Errors
// from generate are returned unchanged.
func (v *Validator) Validate(ctx context.Context, prompt, raw string, generate GenerateFunc) (Outcome, error) {
	suggestions, defect := Parse(raw)
	if defect == nil {
		return Outcome{Suggestions: suggestions, Raw: raw}, nil
	}
	v.logger.WarnContext(ctx, "model output rejected, re-prompting", "defect", defect.Reason)
	return v.Correct(ctx, prompt, raw, defect.Reason, generate)
}

// Correct issues one corrective re-prompt for reason and parses the answer
// without further correction.
func (v *Validator) Correct(ctx context.Context, prompt, raw, reason string, generate GenerateFunc) (Outcome, error) {
	corrected, err := generate(ctx, v.rp.Correction(prompt, raw, reason))
	if err != nil {
		return Outcome{}, err
	}
	suggestions, defect := Parse(corrected)
	if defect != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidOutput, defect)
	}
	return Outcome{Suggestions: suggestions, Raw: corrected, Corrected: true}, nil
}
