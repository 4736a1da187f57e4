// Package engagement implements the gamification engine: daily streaks with
// freeze tokens, the season pass, challenge progress, achievements and
// personal goals, plus the game-end pipeline that applies them together.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// StreakAtRiskWindow is how close to local midnight an active streak is
// reported as at risk.
const StreakAtRiskWindow = time.Hour

// StreakResult reports one streak transition.
type StreakResult struct {
	Success       bool   `json:"success"`
	NewStreak     int    `json:"new_streak"`
	LongestStreak int    `json:"longest_streak"`
	StreakBroken  bool   `json:"streak_broken"`
	UsedFreeze    bool   `json:"used_freeze"`
	Error         string `json:"error,omitempty"`
}

// StreakStatus is a read-only view of a user's streak.
type StreakStatus struct {
	CurrentStreak  int          `json:"current_streak"`
	LongestStreak  int          `json:"longest_streak"`
	FreezeTokens   int          `json:"freeze_tokens"`
	LastPlayedDate *domain.Date `json:"last_played_date,omitempty"`
	AtRisk         bool         `json:"at_risk"`
	ResetTime      time.Time    `json:"reset_time"`
}

// StreakService tracks consecutive local calendar days of play.
// A single missed day is forgiven by spending one freeze token; any longer
// gap restarts the streak regardless of how many tokens are held.
type StreakService struct {
	users domain.UserRepository
	log   *logger.Logger
}

// NewStreakService creates a streak service.
func NewStreakService(users domain.UserRepository, log *logger.Logger) *StreakService {
	return &StreakService{users: users, log: log.With("service", "streak")}
}

// UpdateStreak applies a game played at instant at and persists the user
// when the streak changed. A second game on the same local day is a no-op.
func (s *StreakService) UpdateStreak(ctx context.Context, u *domain.User, at time.Time) (StreakResult, error) {
	result, changed := applyStreak(u, at)
	if !changed {
		return result, nil
	}
	if err := s.users.Update(ctx, u); err != nil {
		return StreakResult{Error: "Failed to save streak"}, fmt.Errorf("persist streak: %w", err)
	}
	s.log.Debug("streak updated",
		"user_id", u.ID,
		"streak", result.NewStreak,
		"broken", result.StreakBroken,
		"used_freeze", result.UsedFreeze,
	)
	return result, nil
}

// applyStreak mutates u in memory and reports whether anything changed.
func applyStreak(u *domain.User, at time.Time) (StreakResult, bool) {
	today := LocalDate(at, u.Timezone)
	result := StreakResult{Success: true}

	if u.LastPlayedDate == nil {
		// First game ever
		u.ExtendStreak(today)
		metrics.StreakUpdates.WithLabelValues("extended").Inc()
		return fill(result, u), true
	}

	gap := today.DaysSince(*u.LastPlayedDate)
	switch {
	case gap <= 0:
		// Already played today (or the timezone moved the day backwards)
		metrics.StreakUpdates.WithLabelValues("same_day").Inc()
		return fill(result, u), false

	case gap == 1:
		u.ExtendStreak(today)
		metrics.StreakUpdates.WithLabelValues("extended").Inc()

	case gap == 2 && u.StreakFreezeTokens > 0:
		// One missed day: a token covers yesterday, then today counts
		u.ConsumeFreezeToken()
		u.ExtendStreak(today.AddDays(-1))
		u.ExtendStreak(today)
		result.UsedFreeze = true
		metrics.StreakUpdates.WithLabelValues("frozen").Inc()

	default:
		u.RestartStreak(today)
		result.StreakBroken = true
		metrics.StreakUpdates.WithLabelValues("broken").Inc()
	}
	return fill(result, u), true
}

func fill(r StreakResult, u *domain.User) StreakResult {
	r.NewStreak = u.CurrentStreak
	r.LongestStreak = u.LongestStreak
	return r
}

// IsStreakAtRisk reports whether an active streak ends within the next hour
// of local time.
func (s *StreakService) IsStreakAtRisk(u *domain.User, now time.Time) bool {
	return IsStreakAtRisk(u, now)
}

// GetStreakResetTime returns the next local midnight for u, in UTC.
func (s *StreakService) GetStreakResetTime(u *domain.User, now time.Time) time.Time {
	return StreakResetTime(u, now)
}

// IsStreakAtRisk is the pure form of StreakService.IsStreakAtRisk.
func IsStreakAtRisk(u *domain.User, now time.Time) bool {
	if u.CurrentStreak <= 0 {
		return false
	}
	return StreakResetTime(u, now).Sub(now) <= StreakAtRiskWindow
}

// StreakResetTime is the pure form of StreakService.GetStreakResetTime.
func StreakResetTime(u *domain.User, now time.Time) time.Time {
	return NextLocalMidnight(now, u.Timezone)
}

// UseStreakFreeze spends one freeze token and persists the user. Returns
// false without touching storage when the user has no tokens.
func (s *StreakService) UseStreakFreeze(ctx context.Context, u *domain.User) (bool, error) {
	if !u.ConsumeFreezeToken() {
		return false, nil
	}
	if err := s.users.Update(ctx, u); err != nil {
		return false, fmt.Errorf("persist freeze token: %w", err)
	}
	return true, nil
}

// Status returns a read-only streak view at now.
func (s *StreakService) Status(u *domain.User, now time.Time) StreakStatus {
	return StreakStatus{
		CurrentStreak:  u.CurrentStreak,
		LongestStreak:  u.LongestStreak,
		FreezeTokens:   u.StreakFreezeTokens,
		LastPlayedDate: u.LastPlayedDate,
		AtRisk:         IsStreakAtRisk(u, now),
		ResetTime:      StreakResetTime(u, now),
	}
}
