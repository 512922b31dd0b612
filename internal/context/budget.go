package ctxengine

import "unicode/utf8"

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// Characters are runes, so the ratio holds for Japanese as well as English
// text. A ratio of ~4 works well for English; ~1.5 for Japanese.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0 (English approximation).
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for the given text.
func (e *CharEstimator) Estimate(text string) int {
	return e.EstimateChars(utf8.RuneCountInString(text))
}

// EstimateChars returns the estimated token count for n characters.
func (e *CharEstimator) EstimateChars(n int) int {
	if n <= 0 {
		return 0
	}
	// Always round up to avoid underestimation.
	return int(float64(n)/e.CharsPerToken) + 1
}

// Chars returns the largest character count whose estimate fits in tokens.
func (e *CharEstimator) Chars(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(float64(tokens-1) * e.CharsPerToken)
}

// ContextBudget tracks token allocation across prompt sections.
type ContextBudget struct {
	WindowSize   int // total context window in tokens
	Overhead     int // fixed prompt text: instructions, headers, goal
	Persona      int // tokens used by persona context
	Conversation int // tokens used by conversation excerpt
	Feedback     int // tokens used by feedback examples
	Reserved     int // reserved for model reply
}

// Used returns the total number of tokens consumed across all sections.
func (b ContextBudget) Used() int {
	return b.Overhead + b.Persona + b.Conversation + b.Feedback + b.Reserved
}

// Available returns the number of tokens remaining for additional content.
// Returns 0 if the budget is already exceeded.
func (b ContextBudget) Available() int {
	avail := b.WindowSize - b.Used()
	if avail < 0 {
		return 0
	}
	return avail
}

// Exceeded reports whether total usage exceeds the context window.
func (b ContextBudget) Exceeded() bool {
	return b.Used() > b.WindowSize
}
