package reply

import (
	"errors"
	"fmt"
	"time"
)

// Rating is an explicit user verdict on a suggestion.
type Rating string

// Ratings.
const (
	RatingAccepted Rating = "accepted"
	RatingRejected Rating = "rejected"
)

// Reaction is the partner's reaction observed after the user sent a suggestion.
type Reaction string

// Reactions.
const (
	ReactionPositive Reaction = "positive"
	ReactionNeutral  Reaction = "neutral"
	ReactionNegative Reaction = "negative"
)

// Polarity classifies feedback for example selection.
type Polarity int

// Polarities.
const (
	PolarityNeutral Polarity = iota
	PolarityPositive
	PolarityNegative
)

// FeedbackRecord attaches one outcome to a generated suggestion.
// Exactly one of Rating or Reaction is set. Records are append-only;
// Seq is the store-assigned creation order.
type FeedbackRecord struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	GenerationID    string    `json:"generation_id"`
	SuggestionIndex int       `json:"suggestion_index"`
	Rating          Rating    `json:"rating,omitempty"`
	Reaction        Reaction  `json:"reaction,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks that the record carries exactly one known outcome.
func (f FeedbackRecord) Validate() error {
	var errs []error
	if f.GenerationID == "" {
		errs = append(errs, errors.New("reply: feedback generation_id is required"))
	}
	if f.SuggestionIndex < 0 || f.SuggestionIndex >= SuggestionCount {
		errs = append(errs, fmt.Errorf("reply: suggestion index must be 0-%d, got %d", SuggestionCount-1, f.SuggestionIndex))
	}
	switch {
	case f.Rating == "" && f.Reaction == "":
		errs = append(errs, errors.New("reply: feedback needs a rating or a reaction"))
	case f.Rating != "" && f.Reaction != "":
		errs = append(errs, errors.New("reply: feedback cannot carry both a rating and a reaction"))
	case f.Rating != "" && f.Rating != RatingAccepted && f.Rating != RatingRejected:
		errs = append(errs, fmt.Errorf("reply: unknown rating %q", f.Rating))
	case f.Reaction != "" && f.Reaction != ReactionPositive && f.Reaction != ReactionNeutral && f.Reaction != ReactionNegative:
		errs = append(errs, fmt.Errorf("reply: unknown reaction %q", f.Reaction))
	}
	return errors.Join(errs...)
}

// Polarity reports whether the record counts as a positive or negative example.
func (f FeedbackRecord) Polarity() Polarity {
	switch {
	case f.Rating == RatingAccepted, f.Reaction == ReactionPositive:
		return PolarityPositive
	case f.Rating == RatingRejected, f.Reaction == ReactionNegative:
		return PolarityNegative
	default:
		return PolarityNeutral
	}
}

// Describe returns a short human-readable label of the outcome.
func (f FeedbackRecord) Describe() string {
	switch {
	case f.Rating == RatingAccepted:
		return "accepted by the user"
	case f.Rating == RatingRejected:
		return "rejected by the user"
	case f.Reaction != "":
		return "sent; partner reacted " + string(f.Reaction) + "ly"
	default:
		return "not yet evaluated"
	}
}

// FeedbackExample is a feedback record joined with the suggestion it rates.
type FeedbackExample struct {
	Record   FeedbackRecord `json:"record"`
	Category string         `json:"category"`
	Text     string         `json:"text"`
}
