package ctxengine_test

import (
	"strings"
	"testing"

	ctxengine "github.com/replypass/replypass/internal/context"
	"github.com/replypass/replypass/pkg/reply"
)

func longPersona(n int) *ctxengine.PersonaMaterial {
	return &ctxengine.PersonaMaterial{
		Persona: reply.Persona{
			ID: "p1", CaseID: "c1", Casualness: 3, EmojiUsage: reply.EmojiNone,
			ReferenceText: strings.Repeat("Short one. ", n),
		},
	}
}

func TestContextAssembler_FitsWindow(t *testing.T) {
	t.Parallel()

	asm := ctxengine.NewContextAssembler(ctxengine.ContextConfig{
		ReservedForReply: 100,
		CharsPerToken:    2,
	})

	var fb ctxengine.FeedbackCorpus
	for i := range 40 {
		fb.Positive = append(fb.Positive, example(strings.Repeat("p", 30), int64(i), t0, reply.RatingAccepted, ""))
		fb.Negative = append(fb.Negative, example(strings.Repeat("n", 30), int64(i), t0, reply.RatingRejected, ""))
	}

	res := asm.Assemble(ctxengine.AssemblyRequest{
		WindowSize:   1100,
		Overhead:     200,
		Persona:      longPersona(400),
		Conversation: ctxengine.NewConversation(makeMessages(300)),
		Feedback:     fb,
	})

	if got := res.Allocation.Total(); got != 800 {
		t.Errorf("allocation total = %d, want 800", got)
	}
	if res.Budget.Exceeded() {
		t.Errorf("budget exceeded: %+v (used %d)", res.Budget, res.Budget.Used())
	}
	if !res.Persona.Truncated || res.Persona.ReferenceExcerpt == "" {
		t.Errorf("persona excerpt = %q, truncated = %v", res.Persona.ReferenceExcerpt, res.Persona.Truncated)
	}
	if res.Conversation.OverBudget || len(res.Conversation.Messages) == 0 {
		t.Errorf("conversation = %+v", res.Conversation)
	}
	if res.Feedback.Empty() {
		t.Error("feedback dropped entirely")
	}
}

func TestContextAssembler_OverBudgetMessageTakesFromFeedback(t *testing.T) {
	t.Parallel()

	asm := ctxengine.NewContextAssembler(ctxengine.ContextConfig{ReservedForReply: 10, CharsPerToken: 1})

	huge := reply.Message{Seq: 1, Speaker: reply.SpeakerPartner, Content: strings.Repeat("x", 450), SentAt: t0}
	var fb ctxengine.FeedbackCorpus
	for i := range 20 {
		fb.Positive = append(fb.Positive, example("fine", int64(i), t0, reply.RatingAccepted, ""))
	}

	res := asm.Assemble(ctxengine.AssemblyRequest{
		WindowSize:   1010,
		Persona:      longPersona(100),
		Conversation: ctxengine.NewConversation([]reply.Message{huge}),
		Feedback:     fb,
	})

	if !res.Conversation.OverBudget {
		t.Fatal("expected over-budget conversation")
	}
	if res.Allocation.Conversation < res.Budget.Conversation {
		t.Errorf("conversation allocation %d below its usage %d", res.Allocation.Conversation, res.Budget.Conversation)
	}
	if res.Unabsorbed != 0 {
		t.Errorf("Unabsorbed = %d, want 0", res.Unabsorbed)
	}
	if res.Allocation.Total() > 1000 {
		t.Errorf("allocation total %d exceeds available 1000", res.Allocation.Total())
	}
}

func TestContextAssembler_MaxContextOverride(t *testing.T) {
	t.Parallel()

	asm := ctxengine.NewContextAssembler(ctxengine.ContextConfig{MaxContextTokens: 500, ReservedForReply: 100, CharsPerToken: 2})
	res := asm.Assemble(ctxengine.AssemblyRequest{
		WindowSize:   1_000_000,
		Persona:      longPersona(1000),
		Conversation: ctxengine.NewConversation(makeMessages(500)),
	})
	if res.Budget.WindowSize != 500 {
		t.Errorf("WindowSize = %d, want 500", res.Budget.WindowSize)
	}
	if res.Allocation.Total() > 400 {
		t.Errorf("allocation total = %d, want <= 400", res.Allocation.Total())
	}
}

func TestContextAssembler_NilSources(t *testing.T) {
	t.Parallel()

	res := ctxengine.NewContextAssembler(ctxengine.ContextConfig{}).Assemble(ctxengine.AssemblyRequest{WindowSize: 4096})
	if res.Allocation.Total() != 0 || res.Conversation.Text != "" || res.Persona.ReferenceExcerpt != "" {
		t.Errorf("Assemble with no sources = %+v", res)
	}
}

func TestContextAssembler_OversizedAnalysisTakesFromFeedback(t *testing.T) {
	t.Parallel()

	asm := ctxengine.NewContextAssembler(ctxengine.ContextConfig{ReservedForReply: 10, CharsPerToken: 1})
	persona := longPersona(10)
	persona.Analysis = &reply.PersonaAnalysis{Personality: strings.Repeat("p", 300), Patterns: strings.Repeat("q", 200)}

	var fb ctxengine.FeedbackCorpus
	for i := range 20 {
		fb.Positive = append(fb.Positive, example("fine", int64(i), t0, reply.RatingAccepted, ""))
	}

	tests := []struct {
		name           string
		window         int
		wantUnabsorbed bool
	}{
		{name: "feedback_covers_overflow", window: 1010},
		{name: "overflow_reported", window: 510, wantUnabsorbed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := asm.Assemble(ctxengine.AssemblyRequest{
				WindowSize:   tt.window,
				Persona:      persona,
				Conversation: ctxengine.NewConversation(makeMessages(100)),
				Feedback:     fb,
			})
			if res.Persona.Analysis == nil {
				t.Fatal("analysis must always be included")
			}
			if tt.wantUnabsorbed {
				if res.Unabsorbed == 0 {
					t.Error("oversized analysis should be reported as unabsorbed")
				}
				if res.Allocation.Feedback != 0 {
					t.Errorf("feedback allocation = %d, want 0", res.Allocation.Feedback)
				}
				return
			}
			if res.Unabsorbed != 0 {
				t.Errorf("Unabsorbed = %d, want 0", res.Unabsorbed)
			}
			if res.Allocation.Persona < 500 {
				t.Errorf("persona allocation = %d, want at least the analysis size 500", res.Allocation.Persona)
			}
			if res.Allocation.Total() > tt.window-10 {
				t.Errorf("allocation total %d exceeds available %d", res.Allocation.Total(), tt.window-10)
			}
		})
	}
}
