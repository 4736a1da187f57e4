package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameSession is a finished game as reported by the game engine. The
// gamification engine only reads it.
type GameSession struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Score        int        `json:"score"`
	LinesCleared int        `json:"lines_cleared"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// NewGameSession opens a session for userID.
func NewGameSession(userID string, startedAt time.Time) (*GameSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return &GameSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: startedAt.UTC(),
	}, nil
}

// End finalizes the session with its score.
func (s *GameSession) End(score, linesCleared int, at time.Time) error {
	if score < 0 || linesCleared < 0 {
		return fmt.Errorf("%w: score and lines cleared must not be negative", ErrValidation)
	}
	if at.Before(s.StartedAt) {
		return fmt.Errorf("%w: session cannot end before it started", ErrValidation)
	}
	ended := at.UTC()
	s.Score = score
	s.LinesCleared = linesCleared
	s.EndedAt = &ended
	return nil
}

// IsEnded reports whether the session has a final result.
func (s *GameSession) IsEnded() bool { return s.EndedAt != nil }

// Duration is the played time, or zero while the session is open.
func (s *GameSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// GameEndedEvent is the message the game engine publishes when a session
// finishes.
type GameEndedEvent struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// Validate checks the required identifiers.
func (e GameEndedEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" || strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("%w: user_id and session_id are required", ErrValidation)
	}
	return nil
}
