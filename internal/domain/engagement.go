package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// clampPercent bounds a progress percentage to 0..100.
func clampPercent(p int) int {
	return max(0, min(p, 100))
}

// percentOf returns value as a clamped percentage of target.
func percentOf(value, target int) int {
	if target <= 0 {
		return 100
	}
	return clampPercent(value * 100 / target)
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementCondition names the lifetime stat an achievement tracks.
type AchievementCondition string

const (
	ConditionGamesPlayed  AchievementCondition = "GamesPlayed"
	ConditionHighScore    AchievementCondition = "HighScore"
	ConditionLinesCleared AchievementCondition = "LinesCleared"
	ConditionStreakDays   AchievementCondition = "StreakDays"
	ConditionSeasonTier   AchievementCondition = "SeasonTier"
)

// ParseAchievementCondition converts a configured name to a condition.
func ParseAchievementCondition(s string) (AchievementCondition, error) {
	switch c := AchievementCondition(s); c {
	case ConditionGamesPlayed, ConditionHighScore, ConditionLinesCleared, ConditionStreakDays, ConditionSeasonTier:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown achievement condition %q", ErrValidation, s)
}

// Achievement is a catalog entry unlocked when a stat reaches Target.
type Achievement struct {
	ID          string               `json:"id"`
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Condition   AchievementCondition `json:"condition"`
	Target      int                  `json:"target"`
	XPReward    int                  `json:"xp_reward"`
}

// NewAchievement validates and creates a catalog entry.
func NewAchievement(code, name, description string, cond AchievementCondition, target, xpReward int) (*Achievement, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("%w: achievement code and name are required", ErrValidation)
	}
	if _, err := ParseAchievementCondition(string(cond)); err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("%w: achievement target must be positive", ErrValidation)
	}
	if xpReward < 0 {
		return nil, fmt.Errorf("%w: achievement xp reward must not be negative", ErrValidation)
	}
	return &Achievement{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(description),
		Condition:   cond,
		Target:      target,
		XPReward:    xpReward,
	}, nil
}

// StatValue reads the stat the achievement tracks from u.
func (a *Achievement) StatValue(u *User) int {
	switch a.Condition {
	case ConditionGamesPlayed:
		return u.GamesPlayed
	case ConditionHighScore:
		return u.HighScore
	case ConditionLinesCleared:
		return u.TotalLinesCleared
	case ConditionStreakDays:
		return u.LongestStreak
	case ConditionSeasonTier:
		return u.CurrentSeasonTier
	}
	return 0
}

// ProgressFor returns u's completion percentage, clamped to 0..100.
func (a *Achievement) ProgressFor(u *User) int {
	return percentOf(a.StatValue(u), a.Target)
}

// UserAchievement is a user's progress towards one achievement.
type UserAchievement struct {
	UserID        string     `json:"user_id"`
	AchievementID string     `json:"achievement_id"`
	Progress      int        `json:"progress"` // 0..100
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
}

// NewUserAchievement starts an empty progress tracker.
func NewUserAchievement(userID, achievementID string) (*UserAchievement, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(achievementID) == "" {
		return nil, fmt.Errorf("%w: user id and achievement id are required", ErrValidation)
	}
	return &UserAchievement{UserID: userID, AchievementID: achievementID}, nil
}

// IsUnlocked reports whether the achievement has been earned.
func (ua *UserAchievement) IsUnlocked() bool { return ua.UnlockedAt != nil }

// UpdateProgress sets the clamped percentage and reports whether this call
// unlocked the achievement. Unlocked achievements stay at 100.
func (ua *UserAchievement) UpdateProgress(percent int, now time.Time) bool {
	if ua.IsUnlocked() {
		return false
	}
	ua.Progress = clampPercent(percent)
	if ua.Progress < 100 {
		return false
	}
	at := now.UTC()
	ua.UnlockedAt = &at
	return true
}

// ─── Personal Goals ─────────────────────────────────────────────────────────

// GoalMetric names what a personal goal accumulates.
type GoalMetric string

const (
	MetricScore GoalMetric = "Score"
	MetricGames GoalMetric = "Games"
	MetricLines GoalMetric = "Lines"
)

// ParseGoalMetric converts a name to a GoalMetric.
func ParseGoalMetric(s string) (GoalMetric, error) {
	switch m := GoalMetric(s); m {
	case MetricScore, MetricGames, MetricLines:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown goal metric %q", ErrValidation, s)
}

// PersonalGoal is a target a user sets for themselves.
type PersonalGoal struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Metric       GoalMetric `json:"metric"`
	TargetValue  int        `json:"target_value"`
	CurrentValue int        `json:"current_value"`
	Progress     int        `json:"progress"` // 0..100
	Deadline     *time.Time `json:"deadline,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewPersonalGoal validates and creates a goal. deadline may be nil.
func NewPersonalGoal(userID, title string, metric GoalMetric, target int, deadline *time.Time, now time.Time) (*PersonalGoal, error) {
	title = strings.TrimSpace(title)
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: goal title is required", ErrValidation)
	}
	if _, err := ParseGoalMetric(string(metric)); err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("%w: goal target must be positive", ErrValidation)
	}
	if deadline != nil && !deadline.After(now) {
		return nil, fmt.Errorf("%w: goal deadline must be in the future", ErrValidation)
	}
	g := &PersonalGoal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Metric:      metric,
		TargetValue: target,
		CreatedAt:   now.UTC(),
	}
	if deadline != nil {
		d := deadline.UTC()
		g.Deadline = &d
	}
	return g, nil
}

// IsCompleted reports whether the goal has been reached.
func (g *PersonalGoal) IsCompleted() bool { return g.CompletedAt != nil }

// IsExpired reports whether the deadline passed before completion.
func (g *PersonalGoal) IsExpired(now time.Time) bool {
	return !g.IsCompleted() && g.Deadline != nil && !now.Before(*g.Deadline)
}

// UpdateProgress adds delta and reports whether this call completed the goal.
func (g *PersonalGoal) UpdateProgress(delta int, now time.Time) (bool, error) {
	if delta < 0 {
		return false, fmt.Errorf("%w: progress delta must not be negative", ErrValidation)
	}
	if g.IsCompleted() {
		return false, nil
	}
	g.CurrentValue += delta
	g.Progress = percentOf(g.CurrentValue, g.TargetValue)
	if g.Progress < 100 {
		return false, nil
	}
	at := now.UTC()
	g.CompletedAt = &at
	return true, nil
}

// ─── Cosmetics ──────────────────────────────────────────────────────────────

// CosmeticKind is the equip slot of a cosmetic.
type CosmeticKind string

const (
	KindBlockSkin  CosmeticKind = "BlockSkin"
	KindBoardTheme CosmeticKind = "BoardTheme"
	KindAvatar     CosmeticKind = "AvatarFrame"
)

// Cosmetic is a catalog item players can own and equip.
type Cosmetic struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Kind CosmeticKind `json:"kind"`
}

// NewCosmetic validates a catalog item. The id is caller-chosen because
// season rewards refer to cosmetics by id.
func NewCosmetic(id, name string, kind CosmeticKind) (*Cosmetic, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: cosmetic id and name are required", ErrValidation)
	}
	switch kind {
	case KindBlockSkin, KindBoardTheme, KindAvatar:
	default:
		return nil, fmt.Errorf("%w: unknown cosmetic kind %q", ErrValidation, kind)
	}
	return &Cosmetic{ID: id, Name: name, Kind: kind}, nil
}

// OwnedCosmetic is a cosmetic in a user's inventory.
type OwnedCosmetic struct {
	Cosmetic
	Source    string    `json:"source"`
	GrantedAt time.Time `json:"granted_at"`
	Equipped  bool      `json:"equipped"`
}
