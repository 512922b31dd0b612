package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return classify(err)
}

// Persona implements store.CaseReader.
func (s *Store) Persona(ctx context.Context, caseID string) (reply.Persona, error) {
	var (
		p     reply.Persona
		emoji string
		qs    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, case_id, casualness, emoji_usage, reference_text, quick_settings, updated_at
		FROM personas WHERE case_id = $1`, caseID,
	).Scan(&p.ID, &p.CaseID, &p.Casualness, &emoji, &p.ReferenceText, &qs, &p.UpdatedAt)
	if err != nil {
		return reply.Persona{}, fmt.Errorf("store.postgres: persona %s: %w", caseID, notFound(err))
	}
	p.EmojiUsage = reply.EmojiTier(emoji)
	if err := json.Unmarshal(qs, &p.QuickSettings); err != nil {
		return reply.Persona{}, fmt.Errorf("store.postgres: decode quick settings of %s: %w", caseID, err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// PersonaAnalysis implements store.CaseReader.
func (s *Store) PersonaAnalysis(ctx context.Context, personaID string) (reply.PersonaAnalysis, error) {
	var a reply.PersonaAnalysis
	err := s.pool.QueryRow(ctx, `
		SELECT persona_id, personality, patterns, model, created_at
		FROM persona_analyses WHERE persona_id = $1`, personaID,
	).Scan(&a.PersonaID, &a.Personality, &a.Patterns, &a.Model, &a.CreatedAt)
	if err != nil {
		return reply.PersonaAnalysis{}, fmt.Errorf("store.postgres: analysis %s: %w", personaID, notFound(err))
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// Messages implements store.CaseReader.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]reply.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, session_id, speaker, content, sent_at
		FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store.postgres: messages of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []reply.Message
	for rows.Next() {
		var (
			m       reply.Message
			speaker string
		)
		if err := rows.Scan(&m.Seq, &m.SessionID, &speaker, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("store.postgres: scan message: %w", err)
		}
		m.Speaker = reply.Speaker(speaker)
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Feedback implements store.CaseReader. The suggestion is picked out of the
// generation's JSONB array server-side.
func (s *Store) Feedback(ctx context.Context, caseID string) ([]reply.FeedbackExample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.seq, f.generation_id, f.suggestion_index, f.rating, f.reaction, f.created_at,
		       g.suggestions -> f.suggestion_index ->> 'category',
		       g.suggestions -> f.suggestion_index ->> 'text'
		FROM feedback f JOIN generations g ON g.id = f.generation_id
		WHERE g.case_id = $1 AND jsonb_array_length(g.suggestions) > f.suggestion_index`, caseID)
	if err != nil {
		return nil, fmt.Errorf("store.postgres: feedback of %s: %w", caseID, err)
	}
	defer rows.Close()

	var out []reply.FeedbackExample
	for rows.Next() {
		var (
			ex               reply.FeedbackExample
			rating, reaction string
		)
		if err := rows.Scan(&ex.Record.ID, &ex.Record.Seq, &ex.Record.GenerationID, &ex.Record.SuggestionIndex,
			&rating, &reaction, &ex.Record.CreatedAt, &ex.Category, &ex.Text); err != nil {
			return nil, fmt.Errorf("store.postgres: scan feedback: %w", err)
		}
		ex.Record.Rating, ex.Record.Reaction = reply.Rating(rating), reply.Reaction(reaction)
		ex.Record.CreatedAt = ex.Record.CreatedAt.UTC()
		out = append(out, ex)
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
		return fmt.Errorf("store.postgres: encode quick settings: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO personas (case_id, id, casualness, emoji_usage, reference_text, quick_settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (case_id) DO UPDATE SET
			id = EXCLUDED.id, casualness = EXCLUDED.casualness, emoji_usage = EXCLUDED.emoji_usage,
			reference_text = EXCLUDED.reference_text, quick_settings = EXCLUDED.quick_settings,
			updated_at = EXCLUDED.updated_at`,
		p.CaseID, p.ID, p.Casualness, string(p.EmojiUsage), p.ReferenceText, qs, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store.postgres: save persona: %w", classify(err))
	}
	return nil
}

// SavePersonaAnalysis implements store.CaseWriter.
func (s *Store) SavePersonaAnalysis(ctx context.Context, a reply.PersonaAnalysis) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO persona_analyses (persona_id, personality, patterns, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (persona_id) DO UPDATE SET
			personality = EXCLUDED.personality, patterns = EXCLUDED.patterns,
			model = EXCLUDED.model, created_at = EXCLUDED.created_at`,
		a.PersonaID, a.Personality, a.Patterns, a.Model, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.postgres: save analysis: %w", err)
	}
	return nil
}

// AppendMessage implements store.CaseWriter.
func (s *Store) AppendMessage(ctx context.Context, m reply.Message) (reply.Message, error) {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (session_id, speaker, content, sent_at) VALUES ($1, $2, $3, $4)
		RETURNING seq`,
		m.SessionID, string(m.Speaker), m.Content, m.SentAt,
	).Scan(&m.Seq)
	if err != nil {
		return reply.Message{}, fmt.Errorf("store.postgres: append message: %w", err)
	}
	return m, nil
}

// SaveUserProfile implements store.CaseWriter.
func (s *Store) SaveUserProfile(ctx context.Context, u reply.UserProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_profiles (id, plan, timezone) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET plan = EXCLUDED.plan, timezone = EXCLUDED.timezone`,
		u.ID, u.Plan, u.Timezone)
	if err != nil {
		return fmt.Errorf("store.postgres: save user profile: %w", err)
	}
	return nil
}

// UserProfile implements store.UserDirectory.
func (s *Store) UserProfile(ctx context.Context, userID string) (reply.UserProfile, error) {
	var u reply.UserProfile
	err := s.pool.QueryRow(ctx, `SELECT id, plan, timezone FROM user_profiles WHERE id = $1`, userID).
		Scan(&u.ID, &u.Plan, &u.Timezone)
	if err != nil {
		return reply.UserProfile{}, fmt.Errorf("store.postgres: user %s: %w", userID, notFound(err))
	}
	return u, nil
}

// IncrementIfBelow implements store.UsageCounters. The conflicting row is
// locked by ON CONFLICT, so the guard and the increment are one step.
func (s *Store) IncrementIfBelow(ctx context.Context, key reply.UsageKey, limit int) (int, bool, error) {
	if limit <= 0 {
		c, err := s.Count(ctx, key)
		return c, false, err
	}
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (user_id, usage_type, day, count) VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, usage_type, day) DO UPDATE SET count = usage_counters.count + 1
		WHERE usage_counters.count < $4
		RETURNING count`,
		key.UserID, string(key.UsageType), key.Day, limit,
	).Scan(&count)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		c, err := s.Count(ctx, key)
		return c, false, err
	case err != nil:
		return 0, false, fmt.Errorf("store.postgres: increment usage: %w", err)
	}
	return count, true, nil
}

// Count implements store.UsageCounters.
func (s *Store) Count(ctx context.Context, key reply.UsageKey) (int, error) {
	var c int
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM usage_counters WHERE user_id = $1 AND usage_type = $2 AND day = $3`,
		key.UserID, string(key.UsageType), key.Day,
	).Scan(&c)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store.postgres: read usage: %w", err)
	}
	return c, nil
}

// Prune implements store.UsageCounters.
func (s *Store) Prune(ctx context.Context, before string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM usage_counters WHERE day < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("store.postgres: prune usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveGeneration implements store.GenerationLog.
func (s *Store) SaveGeneration(ctx context.Context, g reply.Generation) error {
	sug := []byte("[]")
	if len(g.Suggestions) > 0 {
		var err error
		if sug, err = json.Marshal(g.Suggestions); err != nil {
			return fmt.Errorf("store.postgres: encode suggestions: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generations (id, user_id, case_id, session_id, mode, round, previous_id, model, status, failure_kind, suggestions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.ID, g.UserID, g.CaseID, g.SessionID, string(g.Mode), g.Round, g.PreviousID, g.Model,
		string(g.Status), string(g.FailureKind), sug, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.postgres: save generation %s: %w", g.ID, classify(err))
	}
	return nil
}

const generationColumns = `id, user_id, case_id, session_id, mode, round, previous_id, model, status, failure_kind, suggestions, created_at`

func scanGeneration(row pgx.Row) (reply.Generation, error) {
	var (
		g                     reply.Generation
		mode, status, failure string
		sug                   []byte
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.CaseID, &g.SessionID, &mode, &g.Round, &g.PreviousID,
		&g.Model, &status, &failure, &sug, &g.CreatedAt); err != nil {
		return reply.Generation{}, notFound(err)
	}
	g.Mode, g.Status, g.FailureKind = reply.Mode(mode), reply.GenerationStatus(status), reply.FailureKind(failure)
	g.CreatedAt = g.CreatedAt.UTC()
	if err := json.Unmarshal(sug, &g.Suggestions); err != nil {
		return reply.Generation{}, fmt.Errorf("store.postgres: decode suggestions of %s: %w", g.ID, err)
	}
	if len(g.Suggestions) == 0 {
		g.Suggestions = nil
	}
	return g, nil
}

// Generation implements store.GenerationLog.
func (s *Store) Generation(ctx context.Context, id string) (reply.Generation, error) {
	g, err := scanGeneration(s.pool.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id))
	if err != nil {
		return reply.Generation{}, fmt.Errorf("store.postgres: generation %s: %w", id, err)
	}
	return g, nil
}

// LatestGeneration implements store.GenerationLog.
func (s *Store) LatestGeneration(ctx context.Context, sessionID string) (reply.Generation, error) {
	g, err := scanGeneration(s.pool.QueryRow(ctx, `
		SELECT `+generationColumns+` FROM generations
		WHERE session_id = $1 AND status = $2
		ORDER BY created_at DESC, inserted DESC LIMIT 1`,
		sessionID, string(reply.GenerationSucceeded)))
	if err != nil {
		return reply.Generation{}, fmt.Errorf("store.postgres: latest generation of %s: %w", sessionID, err)
	}
	return g, nil
}

// FeedbackFor implements store.GenerationLog.
func (s *Store) FeedbackFor(ctx context.Context, generationID string) ([]reply.FeedbackRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, generation_id, suggestion_index, rating, reaction, created_at
		FROM feedback WHERE generation_id = $1 ORDER BY seq`, generationID)
	if err != nil {
		return nil, fmt.Errorf("store.postgres: feedback for %s: %w", generationID, err)
	}
	defer rows.Close()

	var out []reply.FeedbackRecord
	for rows.Next() {
		var (
			rec              reply.FeedbackRecord
			rating, reaction string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.GenerationID, &rec.SuggestionIndex, &rating, &reaction, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.postgres: scan feedback: %w", err)
		}
		rec.Rating, rec.Reaction = reply.Rating(rating), reply.Reaction(reaction)
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordFeedback implements store.GenerationLog.
func (s *Store) RecordFeedback(ctx context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error) {
	if err := rec.Validate(); err != nil {
		return reply.FeedbackRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feedback (id, generation_id, suggestion_index, rating, reaction, created_at)
		SELECT $1::text, $2::text, $3::integer, $4::text, $5::text, $6::timestamptz
		WHERE EXISTS (SELECT 1 FROM generations WHERE id = $2::text AND status = $7::text)
		RETURNING seq`,
		rec.ID, rec.GenerationID, rec.SuggestionIndex, string(rec.Rating), string(rec.Reaction), rec.CreatedAt,
		string(reply.GenerationSucceeded),
	).Scan(&rec.Seq)
	if err != nil {
		return reply.FeedbackRecord{}, fmt.Errorf("store.postgres: record feedback on %s: %w", rec.GenerationID, notFound(err))
	}
	return rec, nil
}
