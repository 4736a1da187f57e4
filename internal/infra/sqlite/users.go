package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
)

// UserRepo implements domain.UserRepository.
type UserRepo struct {
	db *sql.DB
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, external_id, email, display_name, timezone,
	current_streak, longest_streak, streak_freeze_tokens, last_played_date,
	season_pass_xp, current_season_tier, last_streak_notification_sent_at,
	games_played, high_score, total_lines_cleared, created_at`

// GetByID returns the user, or nil if absent.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Add inserts a new user.
func (r *UserRepo) Add(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalID, u.Email, u.DisplayName, u.Timezone,
		u.CurrentStreak, u.LongestStreak, u.StreakFreezeTokens, nullableDate(u.LastPlayedDate),
		u.SeasonPassXP, u.CurrentSeasonTier, nullableUnix(u.LastStreakNotificationSentAt),
		u.GamesPlayed, u.HighScore, u.TotalLinesCleared, u.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes every mutable gamification field except the notification
// stamp, which only TryClaimStreakNotification may write. A stale in-memory
// copy therefore never re-opens a claimed notification slot.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET
			email = ?, display_name = ?, timezone = ?,
			current_streak = ?, longest_streak = ?, streak_freeze_tokens = ?, last_played_date = ?,
			season_pass_xp = ?, current_season_tier = ?,
			games_played = ?, high_score = ?, total_lines_cleared = ?
		 WHERE id = ?`,
		u.Email, u.DisplayName, u.Timezone,
		u.CurrentStreak, u.LongestStreak, u.StreakFreezeTokens, nullableDate(u.LastPlayedDate),
		u.SeasonPassXP, u.CurrentSeasonTier,
		u.GamesPlayed, u.HighScore, u.TotalLinesCleared,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetAll returns every user, oldest first.
func (r *UserRepo) GetAll(ctx context.Context) ([]*domain.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
}

// GetUsersWithActiveStreaks returns users with current_streak > 0.
func (r *UserRepo) GetUsersWithActiveStreaks(ctx context.Context) ([]*domain.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE current_streak > 0 ORDER BY id`)
}

// TryClaimStreakNotification is a single conditional UPDATE; RowsAffected
// tells the caller whether it won the slot.
func (r *UserRepo) TryClaimStreakNotification(ctx context.Context, userID string, cooldown time.Duration, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_streak_notification_sent_at = ?
		 WHERE id = ?
		   AND (last_streak_notification_sent_at IS NULL OR last_streak_notification_sent_at <= ?)`,
		now.Unix(), userID, now.Add(-cooldown).Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("claim streak notification: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// IsUsernameTaken compares display names case-insensitively.
func (r *UserRepo) IsUsernameTaken(ctx context.Context, displayName string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE display_name = ? COLLATE NOCASE`, displayName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *UserRepo) query(ctx context.Context, q string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ─── User Scanner ───────────────────────────────────────────────────────────

func scanUser(s scanner) (*domain.User, error) {
	var (
		u          domain.User
		lastPlayed sql.NullString
		notified   sql.NullInt64
		createdAt  int64
	)
	err := s.Scan(&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.Timezone,
		&u.CurrentStreak, &u.LongestStreak, &u.StreakFreezeTokens, &lastPlayed,
		&u.SeasonPassXP, &u.CurrentSeasonTier, &notified,
		&u.GamesPlayed, &u.HighScore, &u.TotalLinesCleared, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		d, err := domain.ParseDate(lastPlayed.String)
		if err != nil {
			return nil, fmt.Errorf("user %s last_played_date: %w", u.ID, err)
		}
		u.LastPlayedDate = &d
	}
	u.LastStreakNotificationSentAt = timeFromNull(notified)
	u.CreatedAt = unixUTC(createdAt)
	return &u, nil
}

func nullableDate(d *domain.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
