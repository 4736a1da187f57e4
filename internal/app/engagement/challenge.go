package engagement

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// CalculateProgress returns how much progress game contributes towards c.
// Challenges without a goal type are scored from their description.
func CalculateProgress(c *domain.Challenge, game *domain.GameSession) int {
	if c.GoalType == nil {
		return legacyProgress(c, game)
	}
	switch *c.GoalType {
	case domain.GoalScoreTotal:
		return game.Score
	case domain.GoalScoreSingleGame:
		return singleGame(c, game)
	case domain.GoalGameCount, domain.GoalWinStreak, domain.GoalAccuracy:
		return 1
	case domain.GoalTimeBased:
		if !game.IsEnded() {
			return 1
		}
		return int(math.Ceil(game.Duration().Minutes()))
	}
	return 1
}

// legacyProgress matches keywords in the description. The order of the
// checks is significant: "single game" must win over "game".
func legacyProgress(c *domain.Challenge, game *domain.GameSession) int {
	desc := strings.ToLower(c.Description)
	switch {
	case strings.Contains(desc, "single game"):
		return singleGame(c, game)
	case strings.Contains(desc, "games"), strings.Contains(desc, "play"):
		return 1
	case strings.Contains(desc, "row"), strings.Contains(desc, "streak"):
		return 1
	case strings.Contains(desc, "points"), strings.Contains(desc, "score"):
		return game.Score
	}
	return 1
}

func singleGame(c *domain.Challenge, game *domain.GameSession) int {
	if game.Score >= c.TargetValue {
		return 1
	}
	return 0
}

// ─── Progress Tracking ──────────────────────────────────────────────────────

// ChallengeProgress is a challenge together with one user's progress on it.
type ChallengeProgress struct {
	Challenge *domain.Challenge     `json:"challenge"`
	Progress  *domain.UserChallenge `json:"progress,omitempty"`
}

// ChallengeTracker applies finished games to the live challenges.
type ChallengeTracker struct {
	repo domain.GamificationRepository
	log  *logger.Logger
}

// NewChallengeTracker creates a challenge tracker.
func NewChallengeTracker(repo domain.GamificationRepository, log *logger.Logger) *ChallengeTracker {
	return &ChallengeTracker{repo: repo, log: log.With("service", "challenges")}
}

// RecordGame adds game's progress to every challenge live at game's end and
// returns the challenges this game completed.
func (t *ChallengeTracker) RecordGame(ctx context.Context, userID string, game *domain.GameSession, now time.Time) ([]*domain.Challenge, error) {
	rows, completed, err := t.apply(ctx, userID, game, now)
	if err != nil {
		return nil, err
	}
	if err := t.save(ctx, rows); err != nil {
		return nil, err
	}
	return completed, nil
}

// apply computes game's progress in memory. It returns the rows to save and
// the challenges they complete.
func (t *ChallengeTracker) apply(ctx context.Context, userID string, game *domain.GameSession, now time.Time) ([]*domain.UserChallenge, []*domain.Challenge, error) {
	live, err := t.live(ctx, now)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows      []*domain.UserChallenge
		completed []*domain.Challenge
	)
	for _, c := range live {
		delta := CalculateProgress(c, game)
		if delta <= 0 {
			continue
		}
		uc, err := t.repo.GetUserChallenge(ctx, userID, c.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("get user challenge: %w", err)
		}
		if uc == nil {
			if uc, err = domain.NewUserChallenge(userID, c.ID); err != nil {
				return nil, nil, err
			}
		}
		if uc.IsCompleted {
			continue
		}
		done, err := uc.UpdateProgress(delta, c.TargetValue, now)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, uc)
		if done {
			completed = append(completed, c)
		}
	}
	return rows, completed, nil
}

func (t *ChallengeTracker) save(ctx context.Context, rows []*domain.UserChallenge) error {
	for _, uc := range rows {
		if err := t.repo.SaveUserChallenge(ctx, uc); err != nil {
			return fmt.Errorf("save user challenge: %w", err)
		}
		if uc.IsCompleted {
			t.log.Info("challenge completed",
				"user_id", uc.UserID,
				"challenge_id", uc.ChallengeID,
			)
		}
	}
	return nil
}

// ListForUser returns the live challenges with userID's progress attached.
func (t *ChallengeTracker) ListForUser(ctx context.Context, userID string, now time.Time) ([]ChallengeProgress, error) {
	live, err := t.live(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]ChallengeProgress, 0, len(live))
	for _, c := range live {
		uc, err := t.repo.GetUserChallenge(ctx, userID, c.ID)
		if err != nil {
			return nil, fmt.Errorf("get user challenge: %w", err)
		}
		out = append(out, ChallengeProgress{Challenge: c, Progress: uc})
	}
	return out, nil
}

func (t *ChallengeTracker) live(ctx context.Context, now time.Time) ([]*domain.Challenge, error) {
	var live []*domain.Challenge
	for _, ct := range []domain.ChallengeType{domain.ChallengeDaily, domain.ChallengeWeekly} {
		active, err := t.repo.GetActiveChallenges(ctx, ct)
		if err != nil {
			return nil, fmt.Errorf("get %s challenges: %w", ct, err)
		}
		for _, c := range active {
			if c.IsLive(now) {
				live = append(live, c)
			}
		}
	}
	return live, nil
}
