// Package sqlite provides SQLite-based persistent storage for the
// gamification engine. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/blockrush.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "blockrush.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also makes every conditional
	// UPDATE / INSERT OR IGNORE strictly serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// PingContext checks database connectivity, honoring ctx.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Users returns the user repository.
func (d *DB) Users() *UserRepo { return &UserRepo{db: d.db} }

// Gamification returns the season / challenge / reward repository.
func (d *DB) Gamification() *GamificationRepo { return &GamificationRepo{db: d.db} }

// Sessions returns the game session repository.
func (d *DB) Sessions() *SessionRepo { return &SessionRepo{db: d.db} }

// Achievements returns the achievement repository.
func (d *DB) Achievements() *AchievementRepo { return &AchievementRepo{db: d.db} }

// Goals returns the personal goal repository.
func (d *DB) Goals() *GoalRepo { return &GoalRepo{db: d.db} }

// Cosmetics returns the cosmetic catalog and inventory store.
func (d *DB) Cosmetics() *CosmeticRepo { return &CosmeticRepo{db: d.db} }

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Users (gamification aggregate root)
		`CREATE TABLE IF NOT EXISTS users (
			id                               TEXT PRIMARY KEY,
			external_id                      TEXT NOT NULL UNIQUE,
			email                            TEXT NOT NULL DEFAULT '',
			display_name                     TEXT NOT NULL,
			timezone                         TEXT NOT NULL DEFAULT '',
			current_streak                   INTEGER NOT NULL DEFAULT 0,
			longest_streak                   INTEGER NOT NULL DEFAULT 0,
			streak_freeze_tokens             INTEGER NOT NULL DEFAULT 0,
			last_played_date                 TEXT,
			season_pass_xp                   INTEGER NOT NULL DEFAULT 0,
			current_season_tier              INTEGER NOT NULL DEFAULT 0,
			last_streak_notification_sent_at INTEGER,
			games_played                     INTEGER NOT NULL DEFAULT 0,
			high_score                       INTEGER NOT NULL DEFAULT 0,
			total_lines_cleared              INTEGER NOT NULL DEFAULT 0,
			created_at                       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_streak ON users(current_streak)`,
		`CREATE INDEX IF NOT EXISTS idx_users_display_name ON users(display_name COLLATE NOCASE)`,

		// ─── Season pass ────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS seasons (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			number     INTEGER NOT NULL,
			theme      TEXT NOT NULL DEFAULT '',
			start_date INTEGER NOT NULL,
			end_date   INTEGER NOT NULL,
			is_active  BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS season_rewards (
			id           TEXT PRIMARY KEY,
			season_id    TEXT NOT NULL REFERENCES seasons(id),
			tier         INTEGER NOT NULL,
			name         TEXT NOT NULL,
			reward_type  TEXT NOT NULL,
			reward_value TEXT NOT NULL,
			xp_required  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_season ON season_rewards(season_id, tier)`,

		// Primary key makes the claim an atomic insert-if-absent
		`CREATE TABLE IF NOT EXISTS user_claimed_rewards (
			user_id    TEXT NOT NULL,
			reward_id  TEXT NOT NULL,
			season_id  TEXT NOT NULL,
			claimed_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, reward_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_season ON user_claimed_rewards(user_id, season_id)`,

		`CREATE TABLE IF NOT EXISTS season_archives (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			season_id   TEXT NOT NULL,
			final_xp    INTEGER NOT NULL,
			final_tier  INTEGER NOT NULL,
			archived_at INTEGER NOT NULL,
			UNIQUE (user_id, season_id)
		)`,

		// ─── Challenges ─────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS challenge_templates (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			target_value INTEGER NOT NULL,
			xp_reward    INTEGER NOT NULL,
			goal_type    TEXT,
			is_active    BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			target_value INTEGER NOT NULL,
			xp_reward    INTEGER NOT NULL,
			start_date   INTEGER NOT NULL,
			end_date     INTEGER NOT NULL,
			is_active    BOOLEAN NOT NULL DEFAULT 1,
			goal_type    TEXT,
			template_id  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_active ON challenges(type, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_template ON challenges(template_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS user_challenges (
			user_id          TEXT NOT NULL,
			challenge_id     TEXT NOT NULL,
			current_progress INTEGER NOT NULL DEFAULT 0,
			is_completed     BOOLEAN NOT NULL DEFAULT 0,
			completed_at     INTEGER,
			PRIMARY KEY (user_id, challenge_id)
		)`,

		// ─── Game sessions (written by the game engine) ─────────────
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			score         INTEGER NOT NULL DEFAULT 0,
			lines_cleared INTEGER NOT NULL DEFAULT 0,
			started_at    INTEGER NOT NULL,
			ended_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON game_sessions(user_id)`,
		`CREATE TABLE IF NOT EXISTS processed_sessions (
			session_id   TEXT PRIMARY KEY,
			processed_at INTEGER NOT NULL
		)`,

		// ─── Achievements & goals ───────────────────────────────────
		`CREATE TABLE IF NOT EXISTS achievements (
			id             TEXT PRIMARY KEY,
			code           TEXT NOT NULL UNIQUE,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			condition_type TEXT NOT NULL,
			target         INTEGER NOT NULL,
			xp_reward      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			progress       INTEGER NOT NULL DEFAULT 0,
			unlocked_at    INTEGER,
			PRIMARY KEY (user_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS personal_goals (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			title         TEXT NOT NULL,
			metric        TEXT NOT NULL,
			target_value  INTEGER NOT NULL,
			current_value INTEGER NOT NULL DEFAULT 0,
			progress      INTEGER NOT NULL DEFAULT 0,
			deadline      INTEGER,
			created_at    INTEGER NOT NULL,
			completed_at  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user ON personal_goals(user_id)`,

		// ─── Cosmetics ──────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS cosmetics (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_cosmetics (
			user_id     TEXT NOT NULL,
			cosmetic_id TEXT NOT NULL REFERENCES cosmetics(id),
			source      TEXT NOT NULL,
			granted_at  INTEGER NOT NULL,
			equipped    BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, cosmetic_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// nullableUnix converts an optional time to a nullable unix timestamp.
func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// timeFromNull converts a nullable unix timestamp back to an optional time.
func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
