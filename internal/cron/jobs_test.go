package cron_test

import (
	"context"
	"testing"
	"time"

	"github.com/replypass/replypass/internal/cron"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

func TestUsagePruneJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewInMemoryStore()
	for _, day := range []string{"2026-01-30", "2026-01-31", "2026-02-01", "2026-03-01"} {
		if _, _, err := s.IncrementIfBelow(ctx, reply.UsageKey{UserID: "u", UsageType: reply.UsageReplyGeneration, Day: day}, 10); err != nil {
			t.Fatal(err)
		}
	}

	job := &cron.UsagePruneJob{
		Counters:  s,
		Retention: 28,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC) },
	}
	if job.Name() != "usage_prune" || job.Schedule() != "17 3 * * *" {
		t.Errorf("job = %s %s", job.Name(), job.Schedule())
	}
	if got := job.Cutoff(); got != "2026-02-01" {
		t.Fatalf("Cutoff() = %s", got)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatal(err)
	}

	for day, want := range map[string]int{"2026-01-30": 0, "2026-01-31": 0, "2026-02-01": 1, "2026-03-01": 1} {
		got, _ := s.Count(ctx, reply.UsageKey{UserID: "u", UsageType: reply.UsageReplyGeneration, Day: day})
		if got != want {
			t.Errorf("Count(%s) = %d, want %d", day, got, want)
		}
	}
}
