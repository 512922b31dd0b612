package ctxengine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/replypass/replypass/pkg/reply"
)

// FeedbackSource reads the feedback history of a case.
type FeedbackSource interface {
	Feedback(ctx context.Context, caseID string) ([]reply.FeedbackExample, error)
}

// Selector picks the most recent positive and negative feedback examples
// of a case.
type Selector struct {
	src FeedbackSource
}

// NewSelector creates a Selector reading from src.
func NewSelector(src FeedbackSource) *Selector {
	return &Selector{src: src}
}

// FeedbackCorpus holds the selected examples, each side most recent first.
type FeedbackCorpus struct {
	Positive []reply.FeedbackExample
	Negative []reply.FeedbackExample
}

// Empty reports whether the corpus has no examples.
func (c FeedbackCorpus) Empty() bool {
	return len(c.Positive) == 0 && len(c.Negative) == 0
}

// Select returns up to maxEachSide examples per polarity. Neutral outcomes
// are ignored. Fewer examples than requested are returned as-is.
func (s *Selector) Select(ctx context.Context, caseID string, maxEachSide int) (FeedbackCorpus, error) {
	all, err := s.src.Feedback(ctx, caseID)
	if err != nil {
		return FeedbackCorpus{}, fmt.Errorf("ctxengine: loading feedback for case %s: %w", caseID, err)
	}
	return Partition(all, maxEachSide), nil
}

// Partition splits examples by polarity and keeps the newest maxEachSide of
// each. Ties on CreatedAt break by the record's creation sequence.
func Partition(examples []reply.FeedbackExample, maxEachSide int) FeedbackCorpus {
	sorted := slices.Clone(examples)
	slices.SortStableFunc(sorted, func(a, b reply.FeedbackExample) int {
		if c := b.Record.CreatedAt.Compare(a.Record.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Record.Seq, a.Record.Seq)
	})

	var corpus FeedbackCorpus
	if maxEachSide <= 0 {
		return corpus
	}
	for _, ex := range sorted {
		switch ex.Record.Polarity() {
		case reply.PolarityPositive:
			if len(corpus.Positive) < maxEachSide {
				corpus.Positive = append(corpus.Positive, ex)
			}
		case reply.PolarityNegative:
			if len(corpus.Negative) < maxEachSide {
				corpus.Negative = append(corpus.Negative, ex)
			}
		}
	}
	return corpus
}

// RenderExample formats one example as a prompt line.
func RenderExample(ex reply.FeedbackExample) string {
	var b strings.Builder
	b.WriteString("- ")
	if ex.Category != "" {
		b.WriteString("[" + ex.Category + "] ")
	}
	b.WriteString(ex.Text)
	b.WriteString(" (" + ex.Record.Describe() + ")")
	return b.String()
}

// Size returns the rendered length of every example in characters.
func (c FeedbackCorpus) Size() int {
	n := 0
	for _, ex := range c.Positive {
		n += utf8.RuneCountInString(RenderExample(ex)) + 1
	}
	for _, ex := range c.Negative {
		n += utf8.RuneCountInString(RenderExample(ex)) + 1
	}
	return n
}

// Fit keeps whole examples within maxChars. Sides are visited alternately by
// recency rank, so a tight budget keeps the newest of both polarities. Each
// side stops at its first example that does not fit.
func (c FeedbackCorpus) Fit(maxChars int) FeedbackCorpus {
	var out FeedbackCorpus
	used := 0
	posOpen, negOpen := true, true
	for i := 0; posOpen || negOpen; i++ {
		if posOpen {
			posOpen = i < len(c.Positive)
			if posOpen {
				cost := utf8.RuneCountInString(RenderExample(c.Positive[i])) + 1
				if used+cost <= maxChars {
					out.Positive = append(out.Positive, c.Positive[i])
					used += cost
				} else {
					posOpen = false
				}
			}
		}
		if negOpen {
			negOpen = i < len(c.Negative)
			if negOpen {
				cost := utf8.RuneCountInString(RenderExample(c.Negative[i])) + 1
				if used+cost <= maxChars {
					out.Negative = append(out.Negative, c.Negative[i])
					used += cost
				} else {
					negOpen = false
				}
			}
		}
	}
	return out
}
