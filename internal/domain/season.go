package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTier is the highest season pass tier.
const MaxTier = 10

// TierThresholds holds the XP needed to reach each tier; index is the tier.
var TierThresholds = [MaxTier + 1]int{0, 100, 250, 500, 800, 1200, 1700, 2300, 3000, 4000, 5000}

// TierForXP returns the tier implied by xp, capped at MaxTier.
func TierForXP(xp int) int {
	for tier := MaxTier; tier > 0; tier-- {
		if xp >= TierThresholds[tier] {
			return tier
		}
	}
	return 0
}

// XPForTier returns the XP threshold of tier (clamped to 0..MaxTier).
func XPForTier(tier int) int {
	tier = max(0, min(tier, MaxTier))
	return TierThresholds[tier]
}

// ─── Season ─────────────────────────────────────────────────────────────────

// Season is a fixed-duration season pass track.
type Season struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    int       `json:"number"`
	Theme     string    `json:"theme,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

// NewSeason validates and creates an inactive season.
func NewSeason(name string, number int, theme string, start, end time.Time) (*Season, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: season name is required", ErrValidation)
	}
	if number < 0 {
		return nil, fmt.Errorf("%w: season number must not be negative", ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: season end must be after start", ErrValidation)
	}
	return &Season{
		ID:        uuid.NewString(),
		Name:      name,
		Number:    number,
		Theme:     strings.TrimSpace(theme),
		StartDate: start.UTC(),
		EndDate:   end.UTC(),
	}, nil
}

// Activate marks the season as the running one.
func (s *Season) Activate() { s.IsActive = true }

// Deactivate retires the season.
func (s *Season) Deactivate() { s.IsActive = false }

// Contains reports whether now falls inside [StartDate, EndDate).
func (s *Season) Contains(now time.Time) bool {
	return !now.Before(s.StartDate) && now.Before(s.EndDate)
}

// HasEnded reports whether EndDate has passed.
func (s *Season) HasEnded(now time.Time) bool {
	return !now.Before(s.EndDate)
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardType selects how a season reward is granted.
type RewardType string

const (
	RewardCosmetic     RewardType = "Cosmetic"
	RewardStreakFreeze RewardType = "StreakFreeze"
	RewardXPBoost      RewardType = "XPBoost"
)

// ParseRewardType converts a stored or configured name to a RewardType.
func ParseRewardType(s string) (RewardType, error) {
	switch RewardType(s) {
	case RewardCosmetic, RewardStreakFreeze, RewardXPBoost:
		return RewardType(s), nil
	}
	return "", fmt.Errorf("%w: unknown reward type %q", ErrValidation, s)
}

// SeasonReward is a tier-gated reward. Immutable once created.
type SeasonReward struct {
	ID          string     `json:"id"`
	SeasonID    string     `json:"season_id"`
	Tier        int        `json:"tier"`
	Name        string     `json:"name"`
	RewardType  RewardType `json:"reward_type"`
	RewardValue string     `json:"reward_value"` // cosmetic id, token count, or boost percentage
	XPRequired  int        `json:"xp_required"`
}

// NewSeasonReward validates and creates a reward for tier 1..MaxTier.
func NewSeasonReward(seasonID string, tier int, name string, rewardType RewardType, value string) (*SeasonReward, error) {
	if strings.TrimSpace(seasonID) == "" {
		return nil, fmt.Errorf("%w: season id is required", ErrValidation)
	}
	if tier < 1 || tier > MaxTier {
		return nil, fmt.Errorf("%w: reward tier must be between 1 and %d", ErrValidation, MaxTier)
	}
	if _, err := ParseRewardType(string(rewardType)); err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: reward value is required", ErrValidation)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = fmt.Sprintf("Tier %d %s", tier, rewardType)
	}
	return &SeasonReward{
		ID:          uuid.NewString(),
		SeasonID:    seasonID,
		Tier:        tier,
		Name:        name,
		RewardType:  rewardType,
		RewardValue: value,
		XPRequired:  TierThresholds[tier],
	}, nil
}

// ─── Archive ────────────────────────────────────────────────────────────────

// SeasonArchive is a permanent snapshot of a user's final season standing.
type SeasonArchive struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SeasonID   string    `json:"season_id"`
	FinalXP    int       `json:"final_xp"`
	FinalTier  int       `json:"final_tier"`
	ArchivedAt time.Time `json:"archived_at"`
}

// NewSeasonArchive snapshots u's current season standing for seasonID.
func NewSeasonArchive(u *User, seasonID string, now time.Time) (*SeasonArchive, error) {
	if strings.TrimSpace(seasonID) == "" {
		return nil, fmt.Errorf("%w: season id is required", ErrValidation)
	}
	return &SeasonArchive{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		SeasonID:   seasonID,
		FinalXP:    u.SeasonPassXP,
		FinalTier:  u.CurrentSeasonTier,
		ArchivedAt: now.UTC(),
	}, nil
}
