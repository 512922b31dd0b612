package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/replypass/replypass/pkg/reply"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Intended for tests and the single-shot CLI.
type InMemoryStore struct {
	mu sync.RWMutex

	personas    map[string]reply.Persona // case ID → persona
	analyses    map[string]reply.PersonaAnalysis
	messages    map[string][]reply.Message // session ID → messages
	profiles    map[string]reply.UserProfile
	counters    map[reply.UsageKey]int
	generations map[string]reply.Generation
	genOrder    []string
	feedback    []reply.FeedbackRecord
	seq         int64

	now func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		personas:    make(map[string]reply.Persona),
		analyses:    make(map[string]reply.PersonaAnalysis),
		messages:    make(map[string][]reply.Message),
		profiles:    make(map[string]reply.UserProfile),
		counters:    make(map[reply.UsageKey]int),
		generations: make(map[string]reply.Generation),
		now:         time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Persona returns the persona of a case.
func (s *InMemoryStore) Persona(_ context.Context, caseID string) (reply.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[caseID]
	if !ok {
		return reply.Persona{}, ErrNotFound
	}
	return p, nil
}

// PersonaAnalysis returns the cached analysis of a persona.
func (s *InMemoryStore) PersonaAnalysis(_ context.Context, personaID string) (reply.PersonaAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[personaID]
	if !ok {
		return reply.PersonaAnalysis{}, ErrNotFound
	}
	return a, nil
}

// Messages returns a copy of the session's messages, oldest first.
func (s *InMemoryStore) Messages(_ context.Context, sessionID string) ([]reply.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[sessionID]), nil
}

// Feedback joins every feedback record of the case with its suggestion.
func (s *InMemoryStore) Feedback(_ context.Context, caseID string) ([]reply.FeedbackExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reply.FeedbackExample
	for _, rec := range s.feedback {
		g, ok := s.generations[rec.GenerationID]
		if !ok || g.CaseID != caseID || rec.SuggestionIndex >= len(g.Suggestions) {
			continue
		}
		sug := g.Suggestions[rec.SuggestionIndex]
		out = append(out, reply.FeedbackExample{Record: rec, Category: sug.Category, Text: sug.Text})
	}
	return out, nil
}

// SavePersona inserts or replaces the persona of a case.
func (s *InMemoryStore) SavePersona(_ context.Context, p reply.Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[p.CaseID] = p
	return nil
}

// SavePersonaAnalysis inserts or replaces a persona analysis.
func (s *InMemoryStore) SavePersonaAnalysis(_ context.Context, a reply.PersonaAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.PersonaID] = a
	return nil
}

// AppendMessage appends a message to its session and assigns its sequence.
func (s *InMemoryStore) AppendMessage(_ context.Context, m reply.Message) (reply.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m.Seq = s.seq
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return m, nil
}

// SaveUserProfile inserts or replaces a user profile.
func (s *InMemoryStore) SaveUserProfile(_ context.Context, u reply.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[u.ID] = u
	return nil
}

// UserProfile returns the profile of a user.
func (s *InMemoryStore) UserProfile(_ context.Context, userID string) (reply.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.profiles[userID]
	if !ok {
		return reply.UserProfile{}, ErrNotFound
	}
	return u, nil
}

// IncrementIfBelow increments the counter under the store lock.
func (s *InMemoryStore) IncrementIfBelow(_ context.Context, key reply.UsageKey, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[key]
	if c >= limit {
		return c, false, nil
	}
	c++
	s.counters[key] = c
	return c, true, nil
}

// Count returns the counter value.
func (s *InMemoryStore) Count(_ context.Context, key reply.UsageKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key], nil
}

// Prune removes counters older than before.
func (s *InMemoryStore) Prune(_ context.Context, before string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.counters {
		if key.Day < before {
			delete(s.counters, key)
			n++
		}
	}
	return n, nil
}

// SaveGeneration appends an audit record. IDs must be unique.
func (s *InMemoryStore) SaveGeneration(_ context.Context, g reply.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.generations[g.ID]; exists {
		return fmt.Errorf("store: generation %s already exists", g.ID)
	}
	g.Suggestions = slices.Clone(g.Suggestions)
	s.generations[g.ID] = g
	s.genOrder = append(s.genOrder, g.ID)
	return nil
}

// Generation returns one generation by ID.
func (s *InMemoryStore) Generation(_ context.Context, id string) (reply.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.generations[id]
	if !ok {
		return reply.Generation{}, ErrNotFound
	}
	return g, nil
}

// LatestGeneration returns the newest succeeded generation of a session.
// Ties on CreatedAt resolve to the later insert.
func (s *InMemoryStore) LatestGeneration(_ context.Context, sessionID string) (reply.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  reply.Generation
		found bool
	)
	for _, id := range s.genOrder {
		g := s.generations[id]
		if g.SessionID != sessionID || g.Status != reply.GenerationSucceeded {
			continue
		}
		if !found || !g.CreatedAt.Before(best.CreatedAt) {
			best, found = g, true
		}
	}
	if !found {
		return reply.Generation{}, ErrNotFound
	}
	return best, nil
}

// FeedbackFor returns the records attached to one generation, oldest first.
func (s *InMemoryStore) FeedbackFor(_ context.Context, generationID string) ([]reply.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reply.FeedbackRecord
	for _, rec := range s.feedback {
		if rec.GenerationID == generationID {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b reply.FeedbackRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

// RecordFeedback validates and appends a feedback record.
func (s *InMemoryStore) RecordFeedback(_ context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error) {
	if err := rec.Validate(); err != nil {
		return reply.FeedbackRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[rec.GenerationID]
	if !ok || g.Status != reply.GenerationSucceeded {
		return reply.FeedbackRecord{}, ErrNotFound
	}
	s.seq++
	rec.Seq = s.seq
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.feedback = append(s.feedback, rec)
	return rec, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
