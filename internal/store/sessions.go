package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"recapbot/internal/summarize"

	_ "github.com/lib/pq"
)

// SessionStore persists summarization sessions and feedback in postgres.
// It satisfies summarize.SessionRecorder.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// InitSchema creates the session and feedback tables.
func (s *SessionStore) InitSchema() error {
	slog.Info("Initializing session schema...")

	createSessionsTable := `
		CREATE TABLE IF NOT EXISTS summarization_sessions (
			session_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			summary_type TEXT NOT NULL,
			channel_id TEXT,
			requesting_user_id TEXT NOT NULL,
			messages JSONB NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (session_id, team_id)
		);
	`
	if _, err := s.db.Exec(createSessionsTable); err != nil {
		return fmt.Errorf("failed to create summarization_sessions table: %w", err)
	}

	createFeedbackTable := `
		CREATE TABLE IF NOT EXISTS summarization_feedback (
			session_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			feedback_value INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (session_id, team_id, user_id)
		);
	`
	if _, err := s.db.Exec(createFeedbackTable); err != nil {
		return fmt.Errorf("failed to create summarization_feedback table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_team ON summarization_sessions(team_id, created_at);",
		"CREATE INDEX IF NOT EXISTS idx_feedback_team ON summarization_feedback(team_id, updated_at);",
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			slog.Warn("Failed to create index", "error", err, "sql", indexSQL)
		}
	}

	slog.Info("Session schema initialized successfully")
	return nil
}

// InsertSession records a session exactly once per (session, team). A
// second insert for the same key is silently dropped, never overwritten:
// feedback rows reference the original payload.
func (s *SessionStore) InsertSession(ctx context.Context, rec summarize.SessionRecord) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal session messages: %w", err)
	}

	query := `
		INSERT INTO summarization_sessions (
			session_id, team_id, summary_type, channel_id, requesting_user_id, messages, response
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, team_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.TeamID, string(rec.SummaryType), rec.ChannelID,
		rec.UserID, messages, rec.Response,
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// UpsertFeedback records one user's verdict on a session. Repeated feedback
// from the same user overwrites the value and bumps updated_at.
func (s *SessionStore) UpsertFeedback(ctx context.Context, rec summarize.FeedbackRecord) error {
	query := `
		INSERT INTO summarization_feedback (session_id, team_id, user_id, feedback_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, team_id, user_id)
		DO UPDATE SET
			feedback_value = EXCLUDED.feedback_value,
			updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.TeamID, rec.UserID, rec.Value,
	); err != nil {
		return fmt.Errorf("failed to upsert feedback: %w", err)
	}

	return nil
}

// GetSession fetches a session record, or nil when none exists.
func (s *SessionStore) GetSession(ctx context.Context, sessionID, teamID string) (*summarize.SessionRecord, error) {
	query := `
		SELECT session_id, team_id, summary_type, channel_id, requesting_user_id, messages, response
		FROM summarization_sessions
		WHERE session_id = $1 AND team_id = $2
	`

	var rec summarize.SessionRecord
	var summaryType string
	var messages []byte

	err := s.db.QueryRowContext(ctx, query, sessionID, teamID).Scan(
		&rec.SessionID, &rec.TeamID, &summaryType, &rec.ChannelID,
		&rec.UserID, &messages, &rec.Response,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rec.SummaryType = summarize.Context(summaryType)
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session messages: %w", err)
	}

	return &rec, nil
}

// MemoryRecorder is an in-process SessionRecorder for tests and local runs.
// It mirrors the postgres conflict semantics: insert-or-ignore for sessions,
// upsert for feedback.
type MemoryRecorder struct {
	mu       sync.Mutex
	sessions map[string]summarize.SessionRecord
	feedback map[string]summarize.FeedbackRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		sessions: make(map[string]summarize.SessionRecord),
		feedback: make(map[string]summarize.FeedbackRecord),
	}
}

func (m *MemoryRecorder) InsertSession(_ context.Context, rec summarize.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.SessionID + "/" + rec.TeamID
	if _, exists := m.sessions[key]; exists {
		return nil
	}
	m.sessions[key] = rec
	return nil
}

func (m *MemoryRecorder) UpsertFeedback(_ context.Context, rec summarize.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[rec.SessionID+"/"+rec.TeamID+"/"+rec.UserID] = rec
	return nil
}

// Session returns the stored record for a (session, team) key, if any.
func (m *MemoryRecorder) Session(sessionID, teamID string) (summarize.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID+"/"+teamID]
	return rec, ok
}

// Feedback returns the stored feedback for a (session, team, user) key.
func (m *MemoryRecorder) Feedback(sessionID, teamID, userID string) (summarize.FeedbackRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.feedback[sessionID+"/"+teamID+"/"+userID]
	return rec, ok
}
