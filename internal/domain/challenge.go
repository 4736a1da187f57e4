package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChallengeType is the rotation cadence of a challenge.
type ChallengeType string

const (
	ChallengeDaily  ChallengeType = "Daily"
	ChallengeWeekly ChallengeType = "Weekly"
)

// ParseChallengeType converts a stored or configured name to a ChallengeType.
func ParseChallengeType(s string) (ChallengeType, error) {
	switch ChallengeType(s) {
	case ChallengeDaily, ChallengeWeekly:
		return ChallengeType(s), nil
	}
	return "", fmt.Errorf("%w: unknown challenge type %q", ErrValidation, s)
}

// GoalType controls how a game session turns into challenge progress.
type GoalType string

const (
	GoalScoreTotal      GoalType = "ScoreTotal"
	GoalScoreSingleGame GoalType = "ScoreSingleGame"
	GoalGameCount       GoalType = "GameCount"
	GoalWinStreak       GoalType = "WinStreak"
	GoalAccuracy        GoalType = "Accuracy"
	GoalTimeBased       GoalType = "TimeBased"
)

// ParseGoalType converts a name to a GoalType. An empty string yields nil,
// which marks a legacy challenge scored from its description.
func ParseGoalType(s string) (*GoalType, error) {
	if s == "" {
		return nil, nil
	}
	switch g := GoalType(s); g {
	case GoalScoreTotal, GoalScoreSingleGame, GoalGameCount, GoalWinStreak, GoalAccuracy, GoalTimeBased:
		return &g, nil
	}
	return nil, fmt.Errorf("%w: unknown goal type %q", ErrValidation, s)
}

// ─── Template ───────────────────────────────────────────────────────────────

// ChallengeTemplate is the blueprint the rotation jobs instantiate.
type ChallengeTemplate struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        ChallengeType `json:"type"`
	TargetValue int           `json:"target_value"`
	XPReward    int           `json:"xp_reward"`
	GoalType    *GoalType     `json:"goal_type,omitempty"`
	IsActive    bool          `json:"is_active"`
}

// NewChallengeTemplate validates and creates an active template.
func NewChallengeTemplate(name, description string, ct ChallengeType, target, xpReward int, goal *GoalType) (*ChallengeTemplate, error) {
	if err := validateChallengeFields(name, ct, target, xpReward); err != nil {
		return nil, err
	}
	return &ChallengeTemplate{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Type:        ct,
		TargetValue: target,
		XPReward:    xpReward,
		GoalType:    goal,
		IsActive:    true,
	}, nil
}

// ─── Challenge ──────────────────────────────────────────────────────────────

// Challenge is a time-boxed goal shared by all players.
type Challenge struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        ChallengeType `json:"type"`
	TargetValue int           `json:"target_value"`
	XPReward    int           `json:"xp_reward"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	IsActive    bool          `json:"is_active"`
	GoalType    *GoalType     `json:"goal_type,omitempty"`
	TemplateID  string        `json:"template_id,omitempty"`
}

// NewChallenge validates and creates an active challenge.
func NewChallenge(name, description string, ct ChallengeType, target, xpReward int, start, end time.Time, goal *GoalType) (*Challenge, error) {
	if err := validateChallengeFields(name, ct, target, xpReward); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: challenge end must be after start", ErrValidation)
	}
	return &Challenge{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Type:        ct,
		TargetValue: target,
		XPReward:    xpReward,
		StartDate:   start.UTC(),
		EndDate:     end.UTC(),
		IsActive:    true,
		GoalType:    goal,
	}, nil
}

// CreateFromTemplate instantiates t for the window [now, now+duration).
func CreateFromTemplate(t *ChallengeTemplate, now time.Time, duration time.Duration) (*Challenge, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: challenge duration must be positive", ErrValidation)
	}
	c, err := NewChallenge(t.Name, t.Description, t.Type, t.TargetValue, t.XPReward, now, now.Add(duration), t.GoalType)
	if err != nil {
		return nil, err
	}
	c.TemplateID = t.ID
	return c, nil
}

// Deactivate retires the challenge.
func (c *Challenge) Deactivate() { c.IsActive = false }

// IsExpired reports whether EndDate has passed.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.EndDate)
}

// IsLive reports whether the challenge accepts progress at now.
func (c *Challenge) IsLive(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartDate) && !c.IsExpired(now)
}

func validateChallengeFields(name string, ct ChallengeType, target, xpReward int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: challenge name is required", ErrValidation)
	}
	if _, err := ParseChallengeType(string(ct)); err != nil {
		return err
	}
	if target <= 0 {
		return fmt.Errorf("%w: challenge target must be positive", ErrValidation)
	}
	if xpReward < 0 {
		return fmt.Errorf("%w: challenge xp reward must not be negative", ErrValidation)
	}
	return nil
}

// ─── User Progress ──────────────────────────────────────────────────────────

// UserChallenge tracks one user's progress on one challenge.
type UserChallenge struct {
	UserID          string     `json:"user_id"`
	ChallengeID     string     `json:"challenge_id"`
	CurrentProgress int        `json:"current_progress"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewUserChallenge starts an empty progress tracker.
func NewUserChallenge(userID, challengeID string) (*UserChallenge, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(challengeID) == "" {
		return nil, fmt.Errorf("%w: user id and challenge id are required", ErrValidation)
	}
	return &UserChallenge{UserID: userID, ChallengeID: challengeID}, nil
}

// UpdateProgress adds delta and reports whether this call completed the
// challenge. CompletedAt is written once and never moved afterwards.
func (uc *UserChallenge) UpdateProgress(delta, target int, now time.Time) (bool, error) {
	if delta < 0 {
		return false, fmt.Errorf("%w: progress delta must not be negative", ErrValidation)
	}
	uc.CurrentProgress += delta
	if uc.IsCompleted || uc.CurrentProgress < target {
		return false, nil
	}
	at := now.UTC()
	uc.IsCompleted = true
	uc.CompletedAt = &at
	return true, nil
}
