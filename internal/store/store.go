// Package store defines the persistence contracts of the reply engine and
// an in-memory implementation. SQL and Redis backends live under modules/.
package store

import (
	"context"
	"errors"

	"github.com/replypass/replypass/pkg/reply"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Service names under which store modules publish themselves.
const (
	ServiceStore         = "store"
	ServiceUsageCounters = "store.usage"
)

// CaseReader is read-only access to case data owned by the conversation
// service. The engine never writes through it.
type CaseReader interface {
	// Persona returns the persona of a case or ErrNotFound.
	Persona(ctx context.Context, caseID string) (reply.Persona, error)

	// PersonaAnalysis returns the cached analysis of a persona or ErrNotFound.
	PersonaAnalysis(ctx context.Context, personaID string) (reply.PersonaAnalysis, error)

	// Messages returns every message of a session ordered oldest first.
	Messages(ctx context.Context, sessionID string) ([]reply.Message, error)

	// Feedback returns every feedback record of the case joined with the
	// suggestion it rates. Order is unspecified.
	Feedback(ctx context.Context, caseID string) ([]reply.FeedbackExample, error)
}

// CaseWriter seeds case data. Used by the CLI and by tests; the engine only
// reads.
type CaseWriter interface {
	SavePersona(ctx context.Context, p reply.Persona) error
	SavePersonaAnalysis(ctx context.Context, a reply.PersonaAnalysis) error
	AppendMessage(ctx context.Context, m reply.Message) (reply.Message, error)
	SaveUserProfile(ctx context.Context, u reply.UserProfile) error
}

// UserDirectory resolves plan and timezone for a user.
type UserDirectory interface {
	// UserProfile returns the user's profile or ErrNotFound.
	UserProfile(ctx context.Context, userID string) (reply.UserProfile, error)
}

// UsageCounters holds per-user daily counters.
// Implementations must make IncrementIfBelow atomic across concurrent callers
// and across processes sharing the backend.
type UsageCounters interface {
	// IncrementIfBelow increments the counter when it is below limit and
	// reports the resulting count. When the counter is already at or above
	// limit, it is left untouched and the current count is returned with
	// admitted false.
	IncrementIfBelow(ctx context.Context, key reply.UsageKey, limit int) (count int, admitted bool, err error)

	// Count returns the current value of a counter, 0 if absent.
	Count(ctx context.Context, key reply.UsageKey) (int, error)

	// Prune removes counters for days strictly before the given YYYY-MM-DD day.
	Prune(ctx context.Context, before string) (int64, error)
}

// GenerationLog persists the audit trail of admitted generations and the
// feedback attached to their suggestions.
type GenerationLog interface {
	SaveGeneration(ctx context.Context, g reply.Generation) error

	// Generation returns one generation by ID or ErrNotFound.
	Generation(ctx context.Context, id string) (reply.Generation, error)

	// LatestGeneration returns the most recent succeeded generation of a
	// session or ErrNotFound.
	LatestGeneration(ctx context.Context, sessionID string) (reply.Generation, error)

	// FeedbackFor returns the feedback records of one generation in creation order.
	FeedbackFor(ctx context.Context, generationID string) ([]reply.FeedbackRecord, error)

	// RecordFeedback appends a feedback record and returns it with ID, Seq
	// and CreatedAt assigned.
	RecordFeedback(ctx context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error)
}

// Store is the full backend a store module provides.
type Store interface {
	CaseReader
	CaseWriter
	UserDirectory
	UsageCounters
	GenerationLog
	Close() error
}
