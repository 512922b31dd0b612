// Package storetest provides fixtures and a shared conformance suite for
// store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

// Factory returns a fresh, empty store. Cleanup is the factory's concern.
type Factory func(t *testing.T) store.Store

// Seed writes a persona, an analysis, a user and a short session.
// Returns the persona as stored.
func Seed(t *testing.T, s store.Store) reply.Persona {
	t.Helper()
	ctx := context.Background()

	p := reply.Persona{
		ID:            "persona-1",
		CaseID:        "case-1",
		Casualness:    4,
		EmojiUsage:    reply.EmojiMinimal,
		ReferenceText: "Sounds good! See you then.",
		QuickSettings: reply.QuickSettings{Honorifics: reply.HonorificNever, ResponseLength: reply.LengthShort},
	}
	if err := s.SavePersona(ctx, p); err != nil {
		t.Fatalf("SavePersona: %v", err)
	}
	if err := s.SavePersonaAnalysis(ctx, reply.PersonaAnalysis{
		PersonaID:   p.ID,
		Personality: "Warm and direct.",
		Patterns:    "Short sentences, rare emoji.",
		Model:       "gemini-2.0-flash",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("SavePersonaAnalysis: %v", err)
	}
	if err := s.SaveUserProfile(ctx, reply.UserProfile{ID: "user-1", Plan: reply.PlanFree, Timezone: "Asia/Tokyo"}); err != nil {
		t.Fatalf("SaveUserProfile: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []reply.Message{
		{SessionID: "session-1", Speaker: reply.SpeakerPartner, Content: "Are you free on Friday?", SentAt: base},
		{SessionID: "session-1", Speaker: reply.SpeakerSelf, Content: "I think so, why?", SentAt: base.Add(time.Minute)},
		{SessionID: "session-1", Speaker: reply.SpeakerPartner, Content: "Dinner at 7?", SentAt: base.Add(2 * time.Minute)},
	}
	for _, m := range msgs {
		if _, err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	return p
}

// Generation returns a succeeded generation fixture.
func Generation(id, sessionID string, created time.Time, texts ...string) reply.Generation {
	g := reply.Generation{
		ID:        id,
		UserID:    "user-1",
		CaseID:    "case-1",
		SessionID: sessionID,
		Mode:      reply.ModeInitial,
		Round:     1,
		Model:     "test-model",
		Status:    reply.GenerationSucceeded,
		CreatedAt: created,
	}
	for i, text := range texts {
		g.Suggestions = append(g.Suggestions, reply.Suggestion{Index: i, Category: "Cat" + string(rune('A'+i)), Text: text})
	}
	return g
}

// Run exercises every store contract against the factory's stores.
func Run(t *testing.T, newStore Factory) {
	t.Run("CaseData", func(t *testing.T) { testCaseData(t, newStore(t)) })
	t.Run("Generations", func(t *testing.T) { testGenerations(t, newStore(t)) })
	t.Run("Feedback", func(t *testing.T) { testFeedback(t, newStore(t)) })
	t.Run("UsageCounters", func(t *testing.T) { testUsage(t, newStore(t)) })
	t.Run("ConcurrentAdmission", func(t *testing.T) { ConcurrentAdmission(t, newStore(t)) })
}

func testCaseData(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := Seed(t, s)

	got, err := s.Persona(ctx, "case-1")
	if err != nil {
		t.Fatalf("Persona: %v", err)
	}
	if got.ID != p.ID || got.Casualness != 4 || got.EmojiUsage != reply.EmojiMinimal || got.QuickSettings.ResponseLength != reply.LengthShort {
		t.Errorf("Persona() = %+v", got)
	}
	if _, err := s.Persona(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Persona(missing) error = %v, want ErrNotFound", err)
	}

	a, err := s.PersonaAnalysis(ctx, p.ID)
	if err != nil || a.Personality != "Warm and direct." {
		t.Errorf("PersonaAnalysis() = %+v, %v", a, err)
	}
	if _, err := s.PersonaAnalysis(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("PersonaAnalysis(missing) error = %v, want ErrNotFound", err)
	}

	msgs, err := s.Messages(ctx, "session-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 || msgs[2].Content != "Dinner at 7?" {
		t.Fatalf("Messages() = %+v", msgs)
	}
	if msgs[0].Seq >= msgs[1].Seq {
		t.Errorf("sequence not increasing: %d, %d", msgs[0].Seq, msgs[1].Seq)
	}

	u, err := s.UserProfile(ctx, "user-1")
	if err != nil || u.Timezone != "Asia/Tokyo" || u.Plan != reply.PlanFree {
		t.Errorf("UserProfile() = %+v, %v", u, err)
	}
	if _, err := s.UserProfile(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UserProfile(nobody) error = %v, want ErrNotFound", err)
	}
}

func testGenerations(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LatestGeneration(ctx, "session-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LatestGeneration(empty) error = %v, want ErrNotFound", err)
	}

	first := Generation("gen-1", "session-1", base, "A", "B", "C")
	second := Generation("gen-2", "session-1", base.Add(time.Minute), "D", "E", "F")
	second.Mode, second.Round, second.PreviousID = reply.ModeRegenerate, 2, "gen-1"
	failed := reply.Generation{
		ID: "gen-3", UserID: "user-1", CaseID: "case-1", SessionID: "session-1",
		Mode: reply.ModeRegenerate, Round: 3, Status: reply.GenerationFailed,
		FailureKind: reply.FailureTimeout, CreatedAt: base.Add(2 * time.Minute),
	}
	for _, g := range []reply.Generation{first, second, failed} {
		if err := s.SaveGeneration(ctx, g); err != nil {
			t.Fatalf("SaveGeneration(%s): %v", g.ID, err)
		}
	}

	latest, err := s.LatestGeneration(ctx, "session-1")
	if err != nil {
		t.Fatalf("LatestGeneration: %v", err)
	}
	if latest.ID != "gen-2" {
		t.Errorf("LatestGeneration() = %s, want gen-2 (failed rounds are skipped)", latest.ID)
	}
	if len(latest.Suggestions) != 3 || latest.Suggestions[1].Text != "E" || latest.PreviousID != "gen-1" || latest.Round != 2 {
		t.Errorf("LatestGeneration() = %+v", latest)
	}

	got, err := s.Generation(ctx, "gen-3")
	if err != nil || got.Status != reply.GenerationFailed || got.FailureKind != reply.FailureTimeout {
		t.Errorf("Generation(gen-3) = %+v, %v", got, err)
	}
	if _, err := s.Generation(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Generation(nope) error = %v, want ErrNotFound", err)
	}
}

func testFeedback(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveGeneration(ctx, Generation("gen-1", "session-1", base, "A", "B", "C")); err != nil {
		t.Fatal(err)
	}

	rec, err := s.RecordFeedback(ctx, reply.FeedbackRecord{GenerationID: "gen-1", SuggestionIndex: 1, Rating: reply.RatingRejected})
	if err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if rec.ID == "" || rec.Seq == 0 || rec.CreatedAt.IsZero() {
		t.Errorf("RecordFeedback() did not assign identity: %+v", rec)
	}
	if _, err := s.RecordFeedback(ctx, reply.FeedbackRecord{GenerationID: "gen-1", SuggestionIndex: 0, Reaction: reply.ReactionPositive}); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if _, err := s.RecordFeedback(ctx, reply.FeedbackRecord{GenerationID: "missing", SuggestionIndex: 0, Rating: reply.RatingAccepted}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("RecordFeedback(missing generation) error = %v, want ErrNotFound", err)
	}

	records, err := s.FeedbackFor(ctx, "gen-1")
	if err != nil {
		t.Fatalf("FeedbackFor: %v", err)
	}
	if len(records) != 2 || records[0].SuggestionIndex != 1 || records[1].Reaction != reply.ReactionPositive {
		t.Errorf("FeedbackFor() = %+v", records)
	}

	examples, err := s.Feedback(ctx, "case-1")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("Feedback() returned %d examples, want 2", len(examples))
	}
	for _, ex := range examples {
		want := []string{"A", "B", "C"}[ex.Record.SuggestionIndex]
		if ex.Text != want {
			t.Errorf("example for index %d has text %q, want %q", ex.Record.SuggestionIndex, ex.Text, want)
		}
	}
	other, err := s.Feedback(ctx, "case-2")
	if err != nil || len(other) != 0 {
		t.Errorf("Feedback(case-2) = %+v, %v; want empty", other, err)
	}
}

func testUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := reply.UsageKey{UserID: "user-1", UsageType: reply.UsageReplyGeneration, Day: "2026-03-01"}

	for i := 1; i <= 2; i++ {
		c, ok, err := s.IncrementIfBelow(ctx, key, 2)
		if err != nil || !ok || c != i {
			t.Fatalf("IncrementIfBelow #%d = %d, %v, %v", i, c, ok, err)
		}
	}
	c, ok, err := s.IncrementIfBelow(ctx, key, 2)
	if err != nil || ok || c != 2 {
		t.Fatalf("IncrementIfBelow at limit = %d, %v, %v; want 2, false, nil", c, ok, err)
	}
	if c, _ := s.Count(ctx, key); c != 2 {
		t.Errorf("Count() = %d, want 2", c)
	}

	c, ok, err = s.IncrementIfBelow(ctx, reply.UsageKey{UserID: "user-1", UsageType: reply.UsageReplyGeneration, Day: "2026-03-02"}, 2)
	if err != nil || !ok || c != 1 {
		t.Errorf("next day IncrementIfBelow = %d, %v, %v; want 1, true, nil", c, ok, err)
	}

	c, ok, _ = s.IncrementIfBelow(ctx, reply.UsageKey{UserID: "user-2", UsageType: reply.UsageReplyGeneration, Day: "2026-03-01"}, 0)
	if ok || c != 0 {
		t.Errorf("zero limit admitted: %d, %v", c, ok)
	}

	n, err := s.Prune(ctx, "2026-03-02")
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v; want 1", n, err)
	}
	if c, _ := s.Count(ctx, key); c != 0 {
		t.Errorf("Count() after prune = %d, want 0", c)
	}
}

// ConcurrentAdmission fires many simultaneous increments against one
// counter and checks that exactly limit of them are admitted.
func ConcurrentAdmission(t *testing.T, c store.UsageCounters) {
	t.Helper()
	const (
		limit   = 5
		callers = 40
	)
	ctx := context.Background()
	key := reply.UsageKey{UserID: "racer", UsageType: reply.UsageReplyGeneration, Day: "2026-03-01"}

	var (
		admitted atomic.Int32
		wg       sync.WaitGroup
		start    = make(chan struct{})
		errMu    sync.Mutex
		errs     []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := c.IncrementIfBelow(ctx, key, limit)
			if err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("IncrementIfBelow errors: %v", errors.Join(errs...))
	}
	if got := admitted.Load(); got != limit {
		t.Errorf("admitted %d concurrent requests, want %d", got, limit)
	}
	count, err := c.Count(ctx, key)
	if err != nil || count != limit {
		t.Errorf("Count() = %d, %v; want %d", count, err, limit)
	}
}
