package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store.sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// Persona implements store.CaseReader.
func (s *Store) Persona(ctx context.Context, caseID string) (reply.Persona, error) {
	var (
		p       reply.Persona
		qs, upd string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, casualness, emoji_usage, reference_text, quick_settings, updated_at
		FROM personas WHERE case_id = ?`, caseID,
	).Scan(&p.ID, &p.CaseID, &p.Casualness, &p.EmojiUsage, &p.ReferenceText, &qs, &upd)
	if err != nil {
		return reply.Persona{}, fmt.Errorf("store.sqlite: persona %s: %w", caseID, notFound(err))
	}
	if err := json.Unmarshal([]byte(qs), &p.QuickSettings); err != nil {
		return reply.Persona{}, fmt.Errorf("store.sqlite: decode quick settings of %s: %w", caseID, err)
	}
	if p.UpdatedAt, err = parseTime(upd); err != nil {
		return reply.Persona{}, err
	}
	return p, nil
}

// PersonaAnalysis implements store.CaseReader.
func (s *Store) PersonaAnalysis(ctx context.Context, personaID string) (reply.PersonaAnalysis, error) {
	var (
		a       reply.PersonaAnalysis
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT persona_id, personality, patterns, model, created_at
		FROM persona_analyses WHERE persona_id = ?`, personaID,
	).Scan(&a.PersonaID, &a.Personality, &a.Patterns, &a.Model, &created)
	if err != nil {
		return reply.PersonaAnalysis{}, fmt.Errorf("store.sqlite: analysis %s: %w", personaID, notFound(err))
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return reply.PersonaAnalysis{}, err
	}
	return a, nil
}

// Messages implements store.CaseReader.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]reply.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, speaker, content, sent_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store.sqlite: messages of %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []reply.Message
	for rows.Next() {
		var (
			m    reply.Message
			sent string
		)
		if err := rows.Scan(&m.Seq, &m.SessionID, &m.Speaker, &m.Content, &sent); err != nil {
			return nil, fmt.Errorf("store.sqlite: scan message: %w", err)
		}
		if m.SentAt, err = parseTime(sent); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Feedback implements store.CaseReader.
func (s *Store) Feedback(ctx context.Context, caseID string) ([]reply.FeedbackExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.seq, f.generation_id, f.suggestion_index, f.rating, f.reaction, f.created_at, g.suggestions
		FROM feedback f JOIN generations g ON g.id = f.generation_id
		WHERE g.case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("store.sqlite: feedback of %s: %w", caseID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []reply.FeedbackExample
	for rows.Next() {
		var (
			rec              reply.FeedbackRecord
			created, sugJSON string
			suggestions      []reply.Suggestion
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.GenerationID, &rec.SuggestionIndex, &rec.Rating, &rec.Reaction, &created, &sugJSON); err != nil {
			return nil, fmt.Errorf("store.sqlite: scan feedback: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sugJSON), &suggestions); err != nil {
			return nil, fmt.Errorf("store.sqlite: decode suggestions of %s: %w", rec.GenerationID, err)
		}
		if rec.SuggestionIndex >= len(suggestions) {
			continue
		}
		sug := suggestions[rec.SuggestionIndex]
		out = append(out, reply.FeedbackExample{Record: rec, Category: sug.Category, Text: sug.Text})
	}
	return out, rows.Err()
}

// SavePersona implements store.CaseWriter.
func (s *Store) SavePersona(ctx context.Context, p reply.Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}
	qs, err := json.Marshal(p.QuickSettings)
	if err != nil {
		return fmt.Errorf("store.sqlite: encode quick settings: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (case_id, id, casualness, emoji_usage, reference_text, quick_settings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			id = excluded.id, casualness = excluded.casualness, emoji_usage = excluded.emoji_usage,
			reference_text = excluded.reference_text, quick_settings = excluded.quick_settings,
			updated_at = excluded.updated_at`,
		p.CaseID, p.ID, p.Casualness, p.EmojiUsage, p.ReferenceText, string(qs), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store.sqlite: save persona: %w", err)
	}
	return nil
}

// SavePersonaAnalysis implements store.CaseWriter.
func (s *Store) SavePersonaAnalysis(ctx context.Context, a reply.PersonaAnalysis) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO persona_analyses (persona_id, personality, patterns, model, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.PersonaID, a.Personality, a.Patterns, a.Model, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("store.sqlite: save analysis: %w", err)
	}
	return nil
}

// AppendMessage implements store.CaseWriter.
func (s *Store) AppendMessage(ctx context.Context, m reply.Message) (reply.Message, error) {
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (session_id, speaker, content, sent_at) VALUES (?, ?, ?, ?)
		RETURNING seq`,
		m.SessionID, m.Speaker, m.Content, formatTime(m.SentAt),
	).Scan(&m.Seq)
	if err != nil {
		return reply.Message{}, fmt.Errorf("store.sqlite: append message: %w", err)
	}
	return m, nil
}

// SaveUserProfile implements store.CaseWriter.
func (s *Store) SaveUserProfile(ctx context.Context, u reply.UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_profiles (id, plan, timezone) VALUES (?, ?, ?)`,
		u.ID, u.Plan, u.Timezone)
	if err != nil {
		return fmt.Errorf("store.sqlite: save user profile: %w", err)
	}
	return nil
}

// UserProfile implements store.UserDirectory.
func (s *Store) UserProfile(ctx context.Context, userID string) (reply.UserProfile, error) {
	var u reply.UserProfile
	err := s.db.QueryRowContext(ctx, `SELECT id, plan, timezone FROM user_profiles WHERE id = ?`, userID).
		Scan(&u.ID, &u.Plan, &u.Timezone)
	if err != nil {
		return reply.UserProfile{}, fmt.Errorf("store.sqlite: user %s: %w", userID, notFound(err))
	}
	return u, nil
}

// IncrementIfBelow implements store.UsageCounters with a single upsert: the
// conflict branch only fires while the stored count is below limit, so the
// check and the increment cannot interleave with another caller.
func (s *Store) IncrementIfBelow(ctx context.Context, key reply.UsageKey, limit int) (int, bool, error) {
	if limit <= 0 {
		c, err := s.Count(ctx, key)
		return c, false, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, usage_type, day, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id, usage_type, day) DO UPDATE SET count = count + 1
		WHERE usage_counters.count < ?
		RETURNING count`,
		key.UserID, key.UsageType, key.Day, limit,
	).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c, err := s.Count(ctx, key)
		return c, false, err
	case err != nil:
		return 0, false, fmt.Errorf("store.sqlite: increment usage: %w", err)
	}
	return count, true, nil
}

// Count implements store.UsageCounters.
func (s *Store) Count(ctx context.Context, key reply.UsageKey) (int, error) {
	var c int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM usage_counters WHERE user_id = ? AND usage_type = ? AND day = ?`,
		key.UserID, key.UsageType, key.Day,
	).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store.sqlite: read usage: %w", err)
	}
	return c, nil
}

// Prune implements store.UsageCounters.
func (s *Store) Prune(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE day < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("store.sqlite: prune usage: %w", err)
	}
	return res.RowsAffected()
}

// SaveGeneration implements store.GenerationLog.
func (s *Store) SaveGeneration(ctx context.Context, g reply.Generation) error {
	sug, err := json.Marshal(g.Suggestions)
	if err != nil {
		return fmt.Errorf("store.sqlite: encode suggestions: %w", err)
	}
	if g.Suggestions == nil {
		sug = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generations (id, user_id, case_id, session_id, mode, round, previous_id, model, status, failure_kind, suggestions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.CaseID, g.SessionID, g.Mode, g.Round, g.PreviousID, g.Model,
		g.Status, g.FailureKind, string(sug), formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("store.sqlite: save generation %s: %w", g.ID, err)
	}
	return nil
}

const generationColumns = `id, user_id, case_id, session_id, mode, round, previous_id, model, status, failure_kind, suggestions, created_at`

func scanGeneration(row interface{ Scan(...any) error }) (reply.Generation, error) {
	var (
		g                reply.Generation
		sugJSON, created string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.CaseID, &g.SessionID, &g.Mode, &g.Round, &g.PreviousID,
		&g.Model, &g.Status, &g.FailureKind, &sugJSON, &created); err != nil {
		return reply.Generation{}, notFound(err)
	}
	if err := json.Unmarshal([]byte(sugJSON), &g.Suggestions); err != nil {
		return reply.Generation{}, fmt.Errorf("store.sqlite: decode suggestions of %s: %w", g.ID, err)
	}
	if len(g.Suggestions) == 0 {
		g.Suggestions = nil
	}
	var err error
	if g.CreatedAt, err = parseTime(created); err != nil {
		return reply.Generation{}, err
	}
	return g, nil
}

// Generation implements store.GenerationLog.
func (s *Store) Generation(ctx context.Context, id string) (reply.Generation, error) {
	g, err := scanGeneration(s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id))
	if err != nil {
		return reply.Generation{}, fmt.Errorf("store.sqlite: generation %s: %w", id, err)
	}
	return g, nil
}

// LatestGeneration implements store.GenerationLog. Ties on created_at
// resolve to the later insert.
func (s *Store) LatestGeneration(ctx context.Context, sessionID string) (reply.Generation, error) {
	g, err := scanGeneration(s.db.QueryRowContext(ctx, `
		SELECT `+generationColumns+` FROM generations
		WHERE session_id = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		sessionID, reply.GenerationSucceeded))
	if err != nil {
		return reply.Generation{}, fmt.Errorf("store.sqlite: latest generation of %s: %w", sessionID, err)
	}
	return g, nil
}

// FeedbackFor implements store.GenerationLog.
func (s *Store) FeedbackFor(ctx context.Context, generationID string) ([]reply.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, generation_id, suggestion_index, rating, reaction, created_at
		FROM feedback WHERE generation_id = ? ORDER BY seq`, generationID)
	if err != nil {
		return nil, fmt.Errorf("store.sqlite: feedback for %s: %w", generationID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []reply.FeedbackRecord
	for rows.Next() {
		var (
			rec     reply.FeedbackRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.GenerationID, &rec.SuggestionIndex, &rec.Rating, &rec.Reaction, &created); err != nil {
			return nil, fmt.Errorf("store.sqlite: scan feedback: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordFeedback implements store.GenerationLog. Feedback may only target
// a succeeded generation.
func (s *Store) RecordFeedback(ctx context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error) {
	if err := rec.Validate(); err != nil {
		return reply.FeedbackRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, generation_id, suggestion_index, rating, reaction, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM generations WHERE id = ? AND status = ?)
		RETURNING seq`,
		rec.ID, rec.GenerationID, rec.SuggestionIndex, rec.Rating, rec.Reaction, formatTime(rec.CreatedAt),
		rec.GenerationID, reply.GenerationSucceeded,
	).Scan(&rec.Seq)
	if err != nil {
		return reply.FeedbackRecord{}, fmt.Errorf("store.sqlite: record feedback on %s: %w", rec.GenerationID, notFound(err))
	}
	return rec, nil
}
