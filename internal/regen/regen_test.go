package regen

import (
	"context"
	"slices"
	"testing"

	"github.com/replypass/replypass/pkg/reply"
)

func prior(texts ...string) *reply.Generation {
	g := &reply.Generation{ID: "gen-1", Round: 1, Status: reply.GenerationSucceeded}
	for i, t := range texts {
		g.Suggestions = append(g.Suggestions, reply.Suggestion{Index: i, Category: "c", Text: t})
	}
	return g
}

func suggestions(texts ...string) []reply.Suggestion {
	out := make([]reply.Suggestion, len(texts))
	for i, t := range texts {
		out[i] = reply.Suggestion{Index: i, Category: "c", Text: t}
	}
	return out
}

func TestBegin(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	failed := prior("A", "B", "C")
	failed.Status = reply.GenerationFailed

	tests := []struct {
		name      string
		mode      reply.Mode
		prior     *reply.Generation
		wantState State
		wantRound int
	}{
		{"initial ignores prior", reply.ModeInitial, prior("A", "B", "C"), StateInitial, 1},
		{"regenerate with prior", reply.ModeRegenerate, prior("A", "B", "C"), StateRegenerating, 2},
		{"regenerate without prior", reply.ModeRegenerate, nil, StateInitial, 1},
		{"regenerate over failed round", reply.ModeRegenerate, failed, StateInitial, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := p.Begin(context.Background(), tt.mode, tt.prior, nil)
			if r.State != tt.wantState || r.Number != tt.wantRound {
				t.Errorf("round = %v/%d, want %v/%d", r.State, r.Number, tt.wantState, tt.wantRound)
			}
			if tt.wantState == StateInitial && (r.Exclusion() != nil || r.PreviousID() != "") {
				t.Error("initial round must carry no exclusion")
			}
		})
	}
}

func TestExclusion_Labels(t *testing.T) {
	t.Parallel()

	fb := []reply.FeedbackRecord{
		{GenerationID: "gen-1", SuggestionIndex: 0, Rating: reply.RatingAccepted, Seq: 1},
		{GenerationID: "gen-1", SuggestionIndex: 0, Rating: reply.RatingRejected, Seq: 2},
		{GenerationID: "gen-1", SuggestionIndex: 1, Reaction: reply.ReactionNegative, Seq: 3},
		{GenerationID: "other", SuggestionIndex: 2, Rating: reply.RatingAccepted, Seq: 4},
	}
	r := New(Config{}, nil).Begin(context.Background(), reply.ModeRegenerate, prior("A", "B", "C"), fb)

	ex := r.Exclusion()
	if ex == nil || len(ex.Previous) != 3 {
		t.Fatalf("exclusion = %+v", ex)
	}
	want := []string{"rejected by the user", "sent; partner reacted negatively", "not yet evaluated"}
	for i, w := range want {
		if ex.Previous[i].Label != w {
			t.Errorf("label[%d] = %q, want %q", i, ex.Previous[i].Label, w)
		}
	}
	if r.PreviousID() != "gen-1" {
		t.Errorf("PreviousID = %q", r.PreviousID())
	}
}

func TestDuplicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		normalize bool
		next      []string
		want      []int
	}{
		{"exact repeat of first", false, []string{"A", "D", "E"}, []int{0}},
		{"all new", false, []string{"D", "E", "F"}, nil},
		{"repeat in other position", false, []string{"D", "C", "B"}, []int{1, 2}},
		{"near duplicate allowed by default", false, []string{"a ", "D", "E"}, nil},
		{"near duplicate rejected when normalizing", true, []string{" a　", "D", "E"}, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New(Config{NormalizeDuplicates: tt.normalize}, nil).
				Begin(context.Background(), reply.ModeRegenerate, prior("A", "B", "C"), nil)
			if got := r.Duplicates(suggestions(tt.next...)); !slices.Equal(got, tt.want) {
				t.Errorf("Duplicates = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	if got := Normalize("  Hello\n\tWorld　 "); got != "hello world" {
		t.Errorf("Normalize = %q", got)
	}
}
