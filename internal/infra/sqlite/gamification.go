package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
)

// GamificationRepo implements domain.GamificationRepository.
type GamificationRepo struct {
	db *sql.DB
}

var _ domain.GamificationRepository = (*GamificationRepo)(nil)

// ─── Seasons ────────────────────────────────────────────────────────────────

const seasonColumns = `id, name, number, theme, start_date, end_date, is_active`

// GetCurrentSeason returns the active season whose range contains now.
func (r *GamificationRepo) GetCurrentSeason(ctx context.Context, now time.Time) (*domain.Season, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+seasonColumns+` FROM seasons
		 WHERE is_active = 1 AND start_date <= ? AND end_date > ?
		 ORDER BY number DESC LIMIT 1`,
		now.Unix(), now.Unix(),
	)
	return scanSeason(row)
}

// GetAllSeasons returns every season ordered by start date.
func (r *GamificationRepo) GetAllSeasons(ctx context.Context) ([]*domain.Season, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+seasonColumns+` FROM seasons ORDER BY start_date, number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seasons []*domain.Season
	for rows.Next() {
		s, err := scanSeason(rows)
		if err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

// GetSeason returns one season by id, or nil.
func (r *GamificationRepo) GetSeason(ctx context.Context, id string) (*domain.Season, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id)
	return scanSeason(row)
}

// AddSeason inserts a season.
func (r *GamificationRepo) AddSeason(ctx context.Context, s *domain.Season) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO seasons (`+seasonColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Number, s.Theme, s.StartDate.Unix(), s.EndDate.Unix(), s.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert season: %w", err)
	}
	return nil
}

// UpdateSeason persists the season's activation flag and metadata.
func (r *GamificationRepo) UpdateSeason(ctx context.Context, s *domain.Season) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seasons SET name = ?, number = ?, theme = ?, start_date = ?, end_date = ?, is_active = ?
		 WHERE id = ?`,
		s.Name, s.Number, s.Theme, s.StartDate.Unix(), s.EndDate.Unix(), s.IsActive, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update season: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSeasonNotFound
	}
	return nil
}

// AddSeasonArchive inserts the snapshot unless one exists for (user, season).
func (r *GamificationRepo) AddSeasonArchive(ctx context.Context, a *domain.SeasonArchive) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO season_archives (id, user_id, season_id, final_xp, final_tier, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.SeasonID, a.FinalXP, a.FinalTier, a.ArchivedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert season archive: %w", err)
	}
	return nil
}

// GetSeasonArchives returns a user's archived seasons, newest first.
func (r *GamificationRepo) GetSeasonArchives(ctx context.Context, userID string) ([]*domain.SeasonArchive, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, season_id, final_xp, final_tier, archived_at
		 FROM season_archives WHERE user_id = ? ORDER BY archived_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SeasonArchive
	for rows.Next() {
		var a domain.SeasonArchive
		var archivedAt int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.SeasonID, &a.FinalXP, &a.FinalTier, &archivedAt); err != nil {
			return nil, err
		}
		a.ArchivedAt = unixUTC(archivedAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ─── Challenges ─────────────────────────────────────────────────────────────

const challengeColumns = `id, name, description, type, target_value, xp_reward,
	start_date, end_date, is_active, goal_type, template_id`

// GetActiveChallenges returns challenges of type t flagged active,
// regardless of their date window.
func (r *GamificationRepo) GetActiveChallenges(ctx context.Context, t domain.ChallengeType) ([]*domain.Challenge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE type = ? AND is_active = 1 ORDER BY start_date, id`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChallenge returns one challenge by id, or nil.
func (r *GamificationRepo) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

// AddChallenge inserts a challenge.
func (r *GamificationRepo) AddChallenge(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, string(c.Type), c.TargetValue, c.XPReward,
		c.StartDate.Unix(), c.EndDate.Unix(), c.IsActive, nullableGoal(c.GoalType), nullableString(c.TemplateID),
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// TryAddChallenge inserts c unless an active, unexpired challenge from the
// same template already exists. Check and insert are one statement.
func (r *GamificationRepo) TryAddChallenge(ctx context.Context, c *domain.Challenge, now time.Time) (bool, error) {
	if c.TemplateID == "" {
		return true, r.AddChallenge(ctx, c)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM challenges
			WHERE template_id = ? AND is_active = 1 AND end_date > ?
		 )`,
		c.ID, c.Name, c.Description, string(c.Type), c.TargetValue, c.XPReward,
		c.StartDate.Unix(), c.EndDate.Unix(), c.IsActive, nullableGoal(c.GoalType), nullableString(c.TemplateID),
		c.TemplateID, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert challenge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateChallenge persists the challenge's mutable state.
func (r *GamificationRepo) UpdateChallenge(ctx context.Context, c *domain.Challenge) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET name = ?, description = ?, target_value = ?, xp_reward = ?,
			start_date = ?, end_date = ?, is_active = ?
		 WHERE id = ?`,
		c.Name, c.Description, c.TargetValue, c.XPReward,
		c.StartDate.Unix(), c.EndDate.Unix(), c.IsActive, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrChallengeNotFound
	}
	return nil
}

// GetChallengeTemplates returns the active templates of type t.
func (r *GamificationRepo) GetChallengeTemplates(ctx context.Context, t domain.ChallengeType) ([]*domain.ChallengeTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, type, target_value, xp_reward, goal_type, is_active
		 FROM challenge_templates WHERE type = ? AND is_active = 1 ORDER BY name, id`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChallengeTemplate
	for rows.Next() {
		var (
			tmpl  domain.ChallengeTemplate
			ctype string
			goal  sql.NullString
		)
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Description, &ctype,
			&tmpl.TargetValue, &tmpl.XPReward, &goal, &tmpl.IsActive); err != nil {
			return nil, err
		}
		tmpl.Type = domain.ChallengeType(ctype)
		if tmpl.GoalType, err = goalFromNull(goal); err != nil {
			return nil, err
		}
		out = append(out, &tmpl)
	}
	return out, rows.Err()
}

// AddChallengeTemplate inserts a template.
func (r *GamificationRepo) AddChallengeTemplate(ctx context.Context, t *domain.ChallengeTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenge_templates (id, name, description, type, target_value, xp_reward, goal_type, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, string(t.Type), t.TargetValue, t.XPReward, nullableGoal(t.GoalType), t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert challenge template: %w", err)
	}
	return nil
}

// GetUserChallenge returns the user's progress on a challenge, or nil.
func (r *GamificationRepo) GetUserChallenge(ctx context.Context, userID, challengeID string) (*domain.UserChallenge, error) {
	var (
		uc          domain.UserChallenge
		completedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, challenge_id, current_progress, is_completed, completed_at
		 FROM user_challenges WHERE user_id = ? AND challenge_id = ?`, userID, challengeID,
	).Scan(&uc.UserID, &uc.ChallengeID, &uc.CurrentProgress, &uc.IsCompleted, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	uc.CompletedAt = timeFromNull(completedAt)
	return &uc, nil
}

// SaveUserChallenge upserts progress. completed_at keeps its first value.
func (r *GamificationRepo) SaveUserChallenge(ctx context.Context, uc *domain.UserChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_challenges (user_id, challenge_id, current_progress, is_completed, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, challenge_id) DO UPDATE SET
			current_progress = excluded.current_progress,
			is_completed     = excluded.is_completed,
			completed_at     = COALESCE(user_challenges.completed_at, excluded.completed_at)`,
		uc.UserID, uc.ChallengeID, uc.CurrentProgress, uc.IsCompleted, nullableUnix(uc.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save user challenge: %w", err)
	}
	return nil
}

// ─── Rewards & Claims ───────────────────────────────────────────────────────

const rewardColumns = `id, season_id, tier, name, reward_type, reward_value, xp_required`

// AddSeasonReward inserts a reward.
func (r *GamificationRepo) AddSeasonReward(ctx context.Context, rw *domain.SeasonReward) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO season_rewards (`+rewardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rw.ID, rw.SeasonID, rw.Tier, rw.Name, string(rw.RewardType), rw.RewardValue, rw.XPRequired,
	)
	if err != nil {
		return fmt.Errorf("insert season reward: %w", err)
	}
	return nil
}

// GetSeasonRewards returns a season's rewards ordered by tier.
func (r *GamificationRepo) GetSeasonRewards(ctx context.Context, seasonID string) ([]*domain.SeasonReward, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+rewardColumns+` FROM season_rewards WHERE season_id = ? ORDER BY tier, id`, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SeasonReward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// GetSeasonRewardByID returns one reward, or nil.
func (r *GamificationRepo) GetSeasonRewardByID(ctx context.Context, id string) (*domain.SeasonReward, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM season_rewards WHERE id = ?`, id)
	return scanReward(row)
}

// GetClaimedRewardIDs returns the reward ids userID claimed in seasonID.
func (r *GamificationRepo) GetClaimedRewardIDs(ctx context.Context, userID, seasonID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT reward_id FROM user_claimed_rewards WHERE user_id = ? AND season_id = ?`, userID, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TryAddClaimedReward records the claim with INSERT OR IGNORE on the
// (user_id, reward_id) primary key. Returns false if already claimed or if
// the reward does not exist.
func (r *GamificationRepo) TryAddClaimedReward(ctx context.Context, userID, rewardID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_claimed_rewards (user_id, reward_id, season_id, claimed_at)
		 SELECT ?, id, season_id, ? FROM season_rewards WHERE id = ?`,
		userID, now.Unix(), rewardID,
	)
	if err != nil {
		return false, fmt.Errorf("claim reward: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveClaimedReward deletes a claim; used to compensate a failed grant.
func (r *GamificationRepo) RemoveClaimedReward(ctx context.Context, userID, rewardID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_claimed_rewards WHERE user_id = ? AND reward_id = ?`, userID, rewardID)
	if err != nil {
		return fmt.Errorf("remove reward claim: %w", err)
	}
	return nil
}

// ─── Scanners ───────────────────────────────────────────────────────────────

func scanSeason(s scanner) (*domain.Season, error) {
	var (
		season     domain.Season
		start, end int64
	)
	err := s.Scan(&season.ID, &season.Name, &season.Number, &season.Theme, &start, &end, &season.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	season.StartDate = unixUTC(start)
	season.EndDate = unixUTC(end)
	return &season, nil
}

func scanChallenge(s scanner) (*domain.Challenge, error) {
	var (
		c          domain.Challenge
		ctype      string
		start, end int64
		goal       sql.NullString
		templateID sql.NullString
	)
	err := s.Scan(&c.ID, &c.Name, &c.Description, &ctype, &c.TargetValue, &c.XPReward,
		&start, &end, &c.IsActive, &goal, &templateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Type = domain.ChallengeType(ctype)
	c.StartDate = unixUTC(start)
	c.EndDate = unixUTC(end)
	c.TemplateID = templateID.String
	if c.GoalType, err = goalFromNull(goal); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanReward(s scanner) (*domain.SeasonReward, error) {
	var (
		rw    domain.SeasonReward
		rtype string
	)
	err := s.Scan(&rw.ID, &rw.SeasonID, &rw.Tier, &rw.Name, &rtype, &rw.RewardValue, &rw.XPRequired)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rw.RewardType = domain.RewardType(rtype)
	return &rw, nil
}

func nullableGoal(g *domain.GoalType) sql.NullString {
	if g == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*g), Valid: true}
}

func goalFromNull(n sql.NullString) (*domain.GoalType, error) {
	if !n.Valid {
		return nil, nil
	}
	return domain.ParseGoalType(n.String)
}
