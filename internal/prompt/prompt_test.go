package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	ctxengine "github.com/replypass/replypass/internal/context"
	"github.com/replypass/replypass/internal/regen"
	"github.com/replypass/replypass/pkg/reply"
)

func fullInput() Input {
	return Input{
		Persona: ctxengine.PersonaContext{
			Persona: reply.Persona{
				ID: "p1", CaseID: "c1", Casualness: 4, EmojiUsage: reply.EmojiMinimal,
				QuickSettings: reply.QuickSettings{Honorifics: reply.HonorificNever, HumorLevel: reply.HumorLight},
			},
			Analysis:         &reply.PersonaAnalysis{Personality: "cheerful", Patterns: "short sentences"},
			ReferenceExcerpt: "See you soon!",
		},
		Conversation: "Partner: are you free friday?",
		Feedback: ctxengine.FeedbackCorpus{
			Positive: []reply.FeedbackExample{{Record: reply.FeedbackRecord{Rating: reply.RatingAccepted}, Category: "warm", Text: "POSITIVE-EX"}},
			Negative: []reply.FeedbackExample{{Record: reply.FeedbackRecord{Rating: reply.RatingRejected}, Category: "cold", Text: "NEGATIVE-EX"}},
		},
		Goal: "set up a dinner",
		Exclusion: &regen.Exclusion{Previous: []regen.PriorSuggestion{
			{Category: "warm", Text: "OLD-1", Label: "rejected by the user"},
		}},
	}
}

func indexes(t *testing.T, s string, parts ...string) []int {
	t.Helper()
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i] = strings.Index(s, p)
		if out[i] < 0 {
			t.Fatalf("prompt is missing %q:\n%s", p, s)
		}
	}
	return out
}

func TestAssemble_SectionOrder(t *testing.T) {
	t.Parallel()

	got := New("ROLE").Assemble(fullInput())
	idx := indexes(t, got,
		"ROLE",
		"## Persona",
		"Casualness: 4/5",
		"Personality: cheerful",
		"## Reference style",
		"See you soon!",
		"## Feedback on earlier suggestions",
		"POSITIVE-EX",
		"NEGATIVE-EX",
		"## Conversation",
		"Partner: are you free friday?",
		"## Goal",
		"set up a dinner",
		"## Previous suggestions",
		"OLD-1 (rejected by the user)",
		"## Output format",
	)
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			t.Fatalf("section %d out of order in:\n%s", i, got)
		}
	}
	if !strings.HasSuffix(got, "Do not wrap the array in code fences.") {
		t.Error("output format must be the last section")
	}
}

func TestAssemble_InitialHasNoExclusion(t *testing.T) {
	t.Parallel()

	in := fullInput()
	in.Exclusion = nil
	got := New("").Assemble(in)
	if strings.Contains(got, "## Previous suggestions") {
		t.Error("initial prompt must not contain the exclusion section")
	}
	if !strings.HasPrefix(got, DefaultRole) {
		t.Error("empty role should fall back to DefaultRole")
	}
}

func TestAssemble_InferGoal(t *testing.T) {
	t.Parallel()

	in := fullInput()
	in.Goal = "   "
	got := New("").Assemble(in)
	if !strings.Contains(got, "Infer what the user most likely wants") {
		t.Error("missing goal should ask the model to infer one")
	}
}

func TestAssemble_SkeletonIsFixedOverhead(t *testing.T) {
	t.Parallel()

	a := New("")
	in := fullInput()
	full := a.Assemble(in)
	skel := a.Assemble(in.Skeleton())

	for _, absent := range []string{"See you soon!", "POSITIVE-EX", "Partner: are you free", "cheerful"} {
		if strings.Contains(skel, absent) {
			t.Errorf("skeleton contains budgeted fragment %q", absent)
		}
	}
	for _, kept := range []string{"## Reference style", "## Feedback on earlier suggestions", "## Conversation", "set up a dinner", "OLD-1"} {
		if !strings.Contains(skel, kept) {
			t.Errorf("skeleton lost fixed text %q", kept)
		}
	}
	if len(skel) >= len(full) {
		t.Error("skeleton should be shorter than the full prompt")
	}
}

func TestAssemble_SkeletonBoundsFraming(t *testing.T) {
	t.Parallel()

	noAnalysis := fullInput()
	noAnalysis.Persona.Analysis = nil
	onlyPositive := fullInput()
	onlyPositive.Feedback.Negative = nil
	onlyNegative := fullInput()
	onlyNegative.Feedback.Positive = nil
	bare := fullInput()
	bare.Persona.ReferenceExcerpt = ""
	bare.Feedback = ctxengine.FeedbackCorpus{}
	bare.Conversation = ""

	tests := []struct {
		name string
		in   Input
	}{
		{name: "full", in: fullInput()},
		{name: "no_analysis", in: noAnalysis},
		{name: "only_positive", in: onlyPositive},
		{name: "only_negative", in: onlyNegative},
		{name: "bare", in: bare},
	}
	a := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fragments := utf8.RuneCountInString(tt.in.Persona.ReferenceExcerpt) +
				utf8.RuneCountInString(tt.in.Conversation) +
				tt.in.Feedback.Size()
			if an := tt.in.Persona.Analysis; an != nil {
				fragments += utf8.RuneCountInString(an.Personality) + utf8.RuneCountInString(an.Patterns)
			}
			framing := utf8.RuneCountInString(a.Assemble(tt.in)) - fragments
			skel := utf8.RuneCountInString(a.Assemble(tt.in.Skeleton()))
			if framing > skel {
				t.Errorf("framing is %d chars, skeleton only %d", framing, skel)
			}
		})
	}
}

func TestCorrection(t *testing.T) {
	t.Parallel()

	a := New("")
	base := a.Assemble(fullInput())
	got := a.Correction(base, `[{"category":"a","text":"b"}]`, "expected 3 suggestions, got 1")

	if !strings.HasPrefix(got, base) {
		t.Error("correction must extend the original prompt")
	}
	idx := indexes(t, got[len(base):], "## Correction", "expected 3 suggestions, got 1", `"text":"b"`, "## Output format")
	if idx[3] < idx[2] {
		t.Error("output format must follow the correction")
	}
}

func TestRoleFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "role.md")
	r := NewRoleFile(path)

	got, err := r.Load()
	if err != nil || got != DefaultRole {
		t.Fatalf("absent file: got %q, %v", got, err)
	}

	if err := os.WriteFile(path, []byte("  custom role \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Load(); got != "custom role" {
		t.Fatalf("got %q, want %q", got, "custom role")
	}

	if err := os.WriteFile(path, []byte("changed"), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Load(); got != "changed" {
		t.Fatalf("got %q, want reload", got)
	}

	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, future.Add(time.Hour), future.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Load(); got != DefaultRole {
		t.Fatalf("empty file: got %q", got)
	}
}

func TestStaticRole(t *testing.T) {
	t.Parallel()
	if got, _ := StaticRole("").Load(); got != DefaultRole {
		t.Errorf("got %q", got)
	}
	if got, _ := StaticRole(" x ").Load(); got != "x" {
		t.Errorf("got %q", got)
	}
}
