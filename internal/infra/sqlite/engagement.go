package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blockrush/blockrush/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementRepo implements domain.AchievementRepository.
type AchievementRepo struct {
	db *sql.DB
}

var _ domain.AchievementRepository = (*AchievementRepo)(nil)

// AddAchievement inserts a catalog entry, replacing one with the same code.
func (r *AchievementRepo) AddAchievement(ctx context.Context, a *domain.Achievement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO achievements (id, code, name, description, condition_type, target, xp_reward)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			condition_type = excluded.condition_type, target = excluded.target, xp_reward = excluded.xp_reward`,
		a.ID, a.Code, a.Name, a.Description, string(a.Condition), a.Target, a.XPReward,
	)
	if err != nil {
		return fmt.Errorf("insert achievement: %w", err)
	}
	return nil
}

// ListAchievements returns the catalog ordered by code.
func (r *AchievementRepo) ListAchievements(ctx context.Context) ([]*domain.Achievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name, description, condition_type, target, xp_reward FROM achievements ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Achievement
	for rows.Next() {
		var (
			a    domain.Achievement
			cond string
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &cond, &a.Target, &a.XPReward); err != nil {
			return nil, err
		}
		a.Condition = domain.AchievementCondition(cond)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetUserAchievements returns every tracked achievement for userID.
func (r *AchievementRepo) GetUserAchievements(ctx context.Context, userID string) ([]*domain.UserAchievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, achievement_id, progress, unlocked_at FROM user_achievements WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UserAchievement
	for rows.Next() {
		var (
			ua       domain.UserAchievement
			unlocked sql.NullInt64
		)
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.Progress, &unlocked); err != nil {
			return nil, err
		}
		ua.UnlockedAt = timeFromNull(unlocked)
		out = append(out, &ua)
	}
	return out, rows.Err()
}

// SaveUserAchievement upserts progress. unlocked_at keeps its first value.
func (r *AchievementRepo) SaveUserAchievement(ctx context.Context, ua *domain.UserAchievement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, progress, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, achievement_id) DO UPDATE SET
			progress    = excluded.progress,
			unlocked_at = COALESCE(user_achievements.unlocked_at, excluded.unlocked_at)`,
		ua.UserID, ua.AchievementID, ua.Progress, nullableUnix(ua.UnlockedAt),
	)
	if err != nil {
		return fmt.Errorf("save user achievement: %w", err)
	}
	return nil
}

// ─── Personal Goals ─────────────────────────────────────────────────────────

// GoalRepo implements domain.PersonalGoalRepository.
type GoalRepo struct {
	db *sql.DB
}

var _ domain.PersonalGoalRepository = (*GoalRepo)(nil)

// AddGoal inserts a goal.
func (r *GoalRepo) AddGoal(ctx context.Context, g *domain.PersonalGoal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO personal_goals
			(id, user_id, title, metric, target_value, current_value, progress, deadline, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Title, string(g.Metric), g.TargetValue, g.CurrentValue, g.Progress,
		nullableUnix(g.Deadline), g.CreatedAt.Unix(), nullableUnix(g.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert personal goal: %w", err)
	}
	return nil
}

// GetGoals returns a user's goals, newest first.
func (r *GoalRepo) GetGoals(ctx context.Context, userID string) ([]*domain.PersonalGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, metric, target_value, current_value, progress, deadline, created_at, completed_at
		 FROM personal_goals WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PersonalGoal
	for rows.Next() {
		var (
			g                   domain.PersonalGoal
			metric              string
			deadline, completed sql.NullInt64
			created             int64
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &metric, &g.TargetValue, &g.CurrentValue,
			&g.Progress, &deadline, &created, &completed); err != nil {
			return nil, err
		}
		g.Metric = domain.GoalMetric(metric)
		g.Deadline = timeFromNull(deadline)
		g.CreatedAt = unixUTC(created)
		g.CompletedAt = timeFromNull(completed)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// UpdateGoal persists progress. completed_at keeps its first value.
func (r *GoalRepo) UpdateGoal(ctx context.Context, g *domain.PersonalGoal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE personal_goals SET
			current_value = ?, progress = ?,
			completed_at = COALESCE(completed_at, ?)
		 WHERE id = ?`,
		g.CurrentValue, g.Progress, nullableUnix(g.CompletedAt), g.ID,
	)
	if err != nil {
		return fmt.Errorf("update personal goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}
