package ctxengine

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/replypass/replypass/pkg/reply"
)

// MessageSource reads the messages of a conversation session.
type MessageSource interface {
	Messages(ctx context.Context, sessionID string) ([]reply.Message, error)
}

// Extractor selects the most recent whole messages of a session that fit in
// a character ceiling.
type Extractor struct {
	src MessageSource
}

// NewExtractor creates an Extractor reading from src.
func NewExtractor(src MessageSource) *Extractor {
	return &Extractor{src: src}
}

// Load fetches a session once. The returned Conversation can be windowed
// repeatedly with different ceilings without touching storage again.
func (e *Extractor) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	msgs, err := e.src.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ctxengine: loading session %s: %w", sessionID, err)
	}
	return NewConversation(msgs), nil
}

// Extract loads a session and windows it to maxChars.
func (e *Extractor) Extract(ctx context.Context, sessionID string, maxChars int) (ConversationExcerpt, error) {
	conv, err := e.Load(ctx, sessionID)
	if err != nil {
		return ConversationExcerpt{}, err
	}
	return conv.Window(maxChars), nil
}

// Conversation is an immutable, time-ordered snapshot of a session.
type Conversation struct {
	messages []reply.Message // oldest first
}

// NewConversation orders msgs by send time, then by sequence.
func NewConversation(msgs []reply.Message) *Conversation {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b reply.Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return &Conversation{messages: sorted}
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Recent yields messages newest first. Each range restarts from the newest.
func (c *Conversation) Recent() iter.Seq[reply.Message] {
	return func(yield func(reply.Message) bool) {
		for i := len(c.messages) - 1; i >= 0; i-- {
			if !yield(c.messages[i]) {
				return
			}
		}
	}
}

// Size returns the rendered length of the whole conversation in characters.
func (c *Conversation) Size() int {
	n := 0
	for i, m := range c.messages {
		if i > 0 {
			n++ // newline
		}
		n += utf8.RuneCountInString(m.Render())
	}
	return n
}

// ConversationExcerpt is the windowed conversation text.
type ConversationExcerpt struct {
	// Messages are the selected messages, oldest first.
	Messages []reply.Message

	// Text renders Messages one per line.
	Text string

	// Chars is the rune length of Text.
	Chars int

	// OverBudget is set when the newest message alone exceeds the ceiling.
	// It is then included whole and Overflow holds the excess characters.
	OverBudget bool
	Overflow   int
}

// Window selects the newest messages whose rendered lines fit in maxChars.
// Messages are never cut. Selection stops at the first message that does not
// fit, so the excerpt is always a contiguous suffix of the conversation.
func (c *Conversation) Window(maxChars int) ConversationExcerpt {
	var (
		picked []reply.Message
		lines  []string
		used   int
		ex     ConversationExcerpt
	)
	for m := range c.Recent() {
		line := m.Render()
		cost := utf8.RuneCountInString(line)
		if len(picked) > 0 {
			cost++ // newline
		}
		if used+cost > maxChars {
			if len(picked) == 0 {
				picked, lines, used = append(picked, m), append(lines, line), cost
				ex.OverBudget = true
				ex.Overflow = cost - max(maxChars, 0)
			}
			break
		}
		picked = append(picked, m)
		lines = append(lines, line)
		used += cost
	}

	slices.Reverse(picked)
	slices.Reverse(lines)
	ex.Messages = picked
	ex.Text = strings.Join(lines, "\n")
	ex.Chars = used
	return ex
}
