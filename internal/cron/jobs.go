package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/usage"
)

// UsagePruneJob deletes usage counters older than Retention days. Counters
// are keyed by the user's local day, so the cutoff is computed in UTC with
// the retention as margin.
type UsagePruneJob struct {
	Counters     store.UsageCounters
	Retention    int
	Logger       *slog.Logger
	ScheduleExpr string // empty = "17 3 * * *"
	Now          func() time.Time
}

var _ Job = (*UsagePruneJob)(nil)

// Name implements Job.
func (j *UsagePruneJob) Name() string { return "usage_prune" }

// Schedule implements Job.
func (j *UsagePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "17 3 * * *"
}

// Cutoff returns the first day kept.
func (j *UsagePruneJob) Cutoff() string {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	return now().UTC().AddDate(0, 0, -j.Retention).Format(usage.DayLayout)
}

// Run implements Job.
func (j *UsagePruneJob) Run(ctx context.Context) error {
	before := j.Cutoff()
	n, err := j.Counters.Prune(ctx, before)
	if err != nil {
		return fmt.Errorf("cron: pruning usage before %s: %w", before, err)
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned usage counters", "count", n, "before", before)
	}
	return nil
}
