package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
)

// SessionRepo implements domain.GameSessionRepository. Sessions are written
// by the game engine; Add exists for that writer and for tests.
type SessionRepo struct {
	db *sql.DB
}

var _ domain.GameSessionRepository = (*SessionRepo)(nil)

// GetByID returns the session, or nil if absent.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.GameSession, error) {
	var (
		s       domain.GameSession
		started int64
		ended   sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, score, lines_cleared, started_at, ended_at FROM game_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Score, &s.LinesCleared, &started, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StartedAt = unixUTC(started)
	s.EndedAt = timeFromNull(ended)
	return &s, nil
}

// Add inserts or replaces a session row.
func (r *SessionRepo) Add(ctx context.Context, s *domain.GameSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_sessions (id, user_id, score, lines_cleared, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			score = excluded.score, lines_cleared = excluded.lines_cleared, ended_at = excluded.ended_at`,
		s.ID, s.UserID, s.Score, s.LinesCleared, s.StartedAt.Unix(), nullableUnix(s.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	return nil
}

// MarkProcessed returns false if the session was already processed.
func (r *SessionRepo) MarkProcessed(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_sessions (session_id, processed_at) VALUES (?, ?)`,
		sessionID, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark session processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseProcessed clears the processed mark of a session.
func (r *SessionRepo) ReleaseProcessed(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM processed_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	return nil
}
