// Package usage gates generation requests against per-plan daily quotas.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

// ErrUnavailable is returned when the quota cannot be checked. Callers
// must treat the request as not admitted.
var ErrUnavailable = errors.New("usage: quota check unavailable")

// DayLayout formats counter days.
const DayLayout = time.DateOnly

// Plan is the quota and model configuration of one subscription plan.
type Plan struct {
	// DailyLimits caps each usage type per local day. A missing usage
	// type has a limit of zero.
	DailyLimits map[reply.UsageType]int `yaml:"daily_limits"`

	// Model selects the generation model for the plan. Empty uses the
	// provider default.
	Model string `yaml:"model"`
}

// DefaultPlans returns the stock plan table.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		reply.PlanFree:      {DailyLimits: map[reply.UsageType]int{reply.UsageReplyGeneration: 5}, Model: "gemini-2.0-flash"},
		reply.PlanPro:       {DailyLimits: map[reply.UsageType]int{reply.UsageReplyGeneration: 100}, Model: "gemini-2.0-flash"},
		reply.PlanUnlimited: {DailyLimits: map[reply.UsageType]int{reply.UsageReplyGeneration: 1000}, Model: "gemini-2.5-flash"},
	}
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	Admitted bool
	Count    int
	Limit    int
	Plan     string
	Day      string
}

// Limiter admits requests by atomically incrementing daily counters.
type Limiter struct {
	users    store.UserDirectory
	counters store.UsageCounters
	plans    map[string]Plan
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lim *Limiter) { lim.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(lim *Limiter) { lim.now = now }
}

// NewLimiter creates a Limiter. A nil plan table uses DefaultPlans.
func NewLimiter(users store.UserDirectory, counters store.UsageCounters, plans map[string]Plan, opts ...Option) *Limiter {
	if plans == nil {
		plans = DefaultPlans()
	}
	l := &Limiter{
		users:    users,
		counters: counters,
		plans:    plans,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Plan returns the configuration of a plan.
func (l *Limiter) Plan(name string) (Plan, bool) {
	p, ok := l.plans[name]
	return p, ok
}

// TryAdmit increments the user's counter for usageType if it is below the
// plan limit. A rejected decision leaves the counter unchanged. Any storage
// failure rejects with an error wrapping ErrUnavailable.
func (l *Limiter) TryAdmit(ctx context.Context, userID string, usageType reply.UsageType) (Decision, error) {
	key, d, err := l.resolve(ctx, userID, usageType)
	if err != nil {
		return d, err
	}
	if d.Limit <= 0 {
		count, err := l.counters.Count(ctx, key)
		if err != nil {
			return d, fmt.Errorf("%w: reading counter: %w", ErrUnavailable, err)
		}
		d.Count = count
		return d, nil
	}

	count, admitted, err := l.counters.IncrementIfBelow(ctx, key, d.Limit)
	if err != nil {
		return Decision{Limit: d.Limit, Plan: d.Plan, Day: d.Day}, fmt.Errorf("%w: incrementing counter: %w", ErrUnavailable, err)
	}
	d.Admitted, d.Count = admitted, count
	return d, nil
}

// Usage reports the current counter without changing it.
func (l *Limiter) Usage(ctx context.Context, userID string, usageType reply.UsageType) (Decision, error) {
	key, d, err := l.resolve(ctx, userID, usageType)
	if err != nil {
		return d, err
	}
	count, err := l.counters.Count(ctx, key)
	if err != nil {
		return d, fmt.Errorf("%w: reading counter: %w", ErrUnavailable, err)
	}
	d.Count = count
	d.Admitted = count < d.Limit
	return d, nil
}

func (l *Limiter) resolve(ctx context.Context, userID string, usageType reply.UsageType) (reply.UsageKey, Decision, error) {
	profile, err := l.users.UserProfile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		profile = reply.UserProfile{ID: userID, Plan: reply.PlanFree}
	case err != nil:
		return reply.UsageKey{}, Decision{}, fmt.Errorf("%w: loading profile for %s: %w", ErrUnavailable, userID, err)
	}

	limit := 0
	plan, ok := l.plans[profile.Plan]
	if ok {
		limit = plan.DailyLimits[usageType]
	} else {
		l.logger.WarnContext(ctx, "unknown plan, rejecting", "user_id", userID, "plan", profile.Plan)
	}

	day := l.Day(ctx, profile.Timezone)
	return reply.UsageKey{UserID: userID, UsageType: usageType, Day: day},
		Decision{Limit: limit, Plan: profile.Plan, Day: day}, nil
}

// Day returns today's date in tz. An empty or unknown zone uses UTC.
func (l *Limiter) Day(ctx context.Context, tz string) string {
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			l.logger.WarnContext(ctx, "unknown timezone, using UTC", "timezone", tz, "error", err)
			loc = time.UTC
		}
	}
	return l.now().In(loc).Format(DayLayout)
}
