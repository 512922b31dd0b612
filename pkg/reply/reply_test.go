package reply

import (
	"strings"
	"testing"
)

func validPersona() Persona {
	return Persona{
		ID:            "p1",
		CaseID:        "c1",
		Casualness:    3,
		EmojiUsage:    EmojiMinimal,
		ReferenceText: "Thanks for the update. I'll check tomorrow.",
	}
}

func TestPersona_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Persona)
		wantErr string
	}{
		{"valid", func(*Persona) {}, ""},
		{"casualness too low", func(p *Persona) { p.Casualness = 0 }, "casualness"},
		{"casualness too high", func(p *Persona) { p.Casualness = 6 }, "casualness"},
		{"unknown emoji tier", func(p *Persona) { p.EmojiUsage = "lots" }, "emoji tier"},
		{"missing case", func(p *Persona) { p.CaseID = "" }, "case_id"},
		{"reference too long", func(p *Persona) { p.ReferenceText = strings.Repeat("あ", MaxReferenceRunes+1) }, "reference text"},
		{"reference at limit counts runes", func(p *Persona) { p.ReferenceText = strings.Repeat("あ", MaxReferenceRunes) }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPersona()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFeedbackRecord_Polarity(t *testing.T) {
	tests := []struct {
		name   string
		record FeedbackRecord
		want   Polarity
	}{
		{"accepted", FeedbackRecord{Rating: RatingAccepted}, PolarityPositive},
		{"rejected", FeedbackRecord{Rating: RatingRejected}, PolarityNegative},
		{"positive reaction", FeedbackRecord{Reaction: ReactionPositive}, PolarityPositive},
		{"negative reaction", FeedbackRecord{Reaction: ReactionNegative}, PolarityNegative},
		{"neutral reaction", FeedbackRecord{Reaction: ReactionNeutral}, PolarityNeutral},
		{"empty", FeedbackRecord{}, PolarityNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Polarity(); got != tt.want {
				t.Errorf("Polarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeedbackRecord_Validate(t *testing.T) {
	base := FeedbackRecord{GenerationID: "g1", SuggestionIndex: 1}

	ok := base
	ok.Rating = RatingAccepted
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	both := ok
	both.Reaction = ReactionNegative
	if err := both.Validate(); err == nil {
		t.Error("expected error when both rating and reaction are set")
	}

	if err := base.Validate(); err == nil {
		t.Error("expected error when no outcome is set")
	}

	outOfRange := ok
	outOfRange.SuggestionIndex = SuggestionCount
	if err := outOfRange.Validate(); err == nil {
		t.Error("expected error for out-of-range suggestion index")
	}
}

func TestFeedbackRecord_Describe(t *testing.T) {
	tests := []struct {
		record FeedbackRecord
		want   string
	}{
		{FeedbackRecord{Rating: RatingAccepted}, "accepted by the user"},
		{FeedbackRecord{Rating: RatingRejected}, "rejected by the user"},
		{FeedbackRecord{Reaction: ReactionNeutral}, "sent; partner reacted neutrally"},
		{FeedbackRecord{}, "not yet evaluated"},
	}
	for _, tt := range tests {
		if got := tt.record.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestRequest_Validate(t *testing.T) {
	req := Request{UserID: "u", CaseID: "c", SessionID: "s", Mode: ModeInitial}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.Mode = "again"
	if err := req.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}

	if err := (Request{Mode: ModeRegenerate}).Validate(); err == nil {
		t.Error("expected error for missing identifiers")
	}
}

func TestMessage_Render(t *testing.T) {
	m := Message{Speaker: SpeakerPartner, Content: "See you at 7?"}
	if got := m.Render(); got != "Partner: See you at 7?" {
		t.Errorf("Render() = %q", got)
	}
}
