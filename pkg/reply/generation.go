package reply

import (
	"errors"
	"fmt"
	"time"
)

// SuggestionCount is the exact number of suggestions per generation.
const SuggestionCount = 3

// Mode distinguishes a first generation from a regeneration of the same turn.
type Mode string

// Modes.
const (
	ModeInitial    Mode = "initial"
	ModeRegenerate Mode = "regenerate"
)

// Request is one unit of generation work as received from the API layer.
// The caller is already authenticated and authorized for CaseID.
type Request struct {
	UserID    string `json:"user_id"`
	CaseID    string `json:"case_id"`
	SessionID string `json:"session_id"`
	Goal      string `json:"goal,omitempty"`
	Mode      Mode   `json:"mode"`
}

// Validate checks that the request is complete.
func (r Request) Validate() error {
	var errs []error
	if r.UserID == "" {
		errs = append(errs, errors.New("reply: user_id is required"))
	}
	if r.CaseID == "" {
		errs = append(errs, errors.New("reply: case_id is required"))
	}
	if r.SessionID == "" {
		errs = append(errs, errors.New("reply: session_id is required"))
	}
	switch r.Mode {
	case ModeInitial, ModeRegenerate:
	default:
		errs = append(errs, fmt.Errorf("reply: unknown mode %q", r.Mode))
	}
	return errors.Join(errs...)
}

// Suggestion is one generated reply option. Never mutated after creation.
type Suggestion struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Texts returns the suggestion texts in order.
func Texts(suggestions []Suggestion) []string {
	out := make([]string, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Text
	}
	return out
}

// GenerationStatus is the terminal state recorded in the audit log.
type GenerationStatus string

// Generation statuses.
const (
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation is the persisted audit record of an admitted request.
// Every admitted request produces exactly one record, succeeded or failed.
type Generation struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	CaseID      string           `json:"case_id"`
	SessionID   string           `json:"session_id"`
	Mode        Mode             `json:"mode"`
	Round       int              `json:"round"`
	PreviousID  string           `json:"previous_id,omitempty"`
	Model       string           `json:"model,omitempty"`
	Status      GenerationStatus `json:"status"`
	FailureKind FailureKind      `json:"failure_kind,omitempty"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// FailureKind names why a generation failed after internal retries.
type FailureKind string

// Failure kinds surfaced to the caller.
const (
	FailureTimeout             FailureKind = "timeout"
	FailureUpstreamRateLimited FailureKind = "upstream_rate_limited"
	FailureUpstreamError       FailureKind = "upstream_error"
	FailureInvalidOutput       FailureKind = "invalid_output"
	FailureDuplicateOutput     FailureKind = "duplicate_output"
	FailureContextUnavailable  FailureKind = "context_unavailable"
)

// Status is the top-level outcome of a generation call.
type Status string

// Outcomes.
const (
	StatusOK               Status = "ok"
	StatusQuotaExceeded    Status = "quota_exceeded"
	StatusGenerationFailed Status = "generation_failed"
	StatusUnavailable      Status = "unavailable"
)

// Quota reports the counter state for a quota decision.
type Quota struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

// Result is the typed outcome returned to the API layer.
type Result struct {
	Status       Status       `json:"status"`
	GenerationID string       `json:"generation_id,omitempty"`
	Suggestions  []Suggestion `json:"suggestions,omitempty"`
	Quota        *Quota       `json:"quota,omitempty"`
	Failure      FailureKind  `json:"failure,omitempty"`
}

// OK reports whether the result carries suggestions.
func (r Result) OK() bool {
	return r.Status == StatusOK
}
