// Package cron schedules periodic maintenance such as pruning expired
// usage counters.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. Unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression, e.g. "17 3 * * *".
	Schedule() string

	// Run executes one tick. Implementations should honor ctx cancellation.
	Run(ctx context.Context) error
}
