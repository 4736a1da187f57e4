package engagement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// XP grant sources.
const (
	SourceGame        = "game"
	SourceChallenge   = "challenge"
	SourceAchievement = "achievement"
	SourceSeasonPass  = "season_pass"
)

// CalculateTierFromXP maps season XP to a tier in 0..10.
func CalculateTierFromXP(xp int) int {
	return domain.TierForXP(xp)
}

// AddXPResult reports one XP grant.
type AddXPResult struct {
	Success          bool   `json:"success"`
	XPAdded          int    `json:"xp_added"`
	NewXP            int    `json:"new_xp"`
	OldTier          int    `json:"old_tier"`
	NewTier          int    `json:"new_tier"`
	TierUp           bool   `json:"tier_up"`
	TiersGained      []int  `json:"tiers_gained,omitempty"`
	RewardsAvailable int    `json:"rewards_available"`
	Error            string `json:"error,omitempty"`
}

// ClaimResult reports one reward claim. Business failures set Error and
// leave Success false; they are not returned as Go errors.
type ClaimResult struct {
	Success     bool              `json:"success"`
	RewardType  domain.RewardType `json:"reward_type,omitempty"`
	RewardValue string            `json:"reward_value,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// RewardStatus is one reward line in the season pass view.
type RewardStatus struct {
	*domain.SeasonReward
	Claimed   bool `json:"claimed"`
	Claimable bool `json:"claimable"`
}

// SeasonPassStatus is a user's standing in the current season.
type SeasonPassStatus struct {
	Season     *domain.Season `json:"season,omitempty"`
	XP         int            `json:"xp"`
	Tier       int            `json:"tier"`
	NextTierXP int            `json:"next_tier_xp,omitempty"` // 0 at max tier
	Rewards    []RewardStatus `json:"rewards"`
}

// SeasonPassService grants season XP and hands out tier rewards.
type SeasonPassService struct {
	users     domain.UserRepository
	repo      domain.GamificationRepository
	cosmetics domain.CosmeticGranter
	log       *logger.Logger
}

// NewSeasonPassService creates a season pass service.
func NewSeasonPassService(users domain.UserRepository, repo domain.GamificationRepository, cosmetics domain.CosmeticGranter, log *logger.Logger) *SeasonPassService {
	return &SeasonPassService{
		users:     users,
		repo:      repo,
		cosmetics: cosmetics,
		log:       log.With("service", "season_pass"),
	}
}

// AddXP grants amount season XP to u from source and persists u once.
func (s *SeasonPassService) AddXP(ctx context.Context, u *domain.User, amount int, source string) (AddXPResult, error) {
	return s.AddXPAt(ctx, u, amount, source, time.Now())
}

// AddXPAt is AddXP with an explicit clock, used to pick the current season.
func (s *SeasonPassService) AddXPAt(ctx context.Context, u *domain.User, amount int, source string, now time.Time) (AddXPResult, error) {
	result, err := s.applyXP(ctx, u, amount, source, now)
	if err != nil {
		return result, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return AddXPResult{Error: "Failed to save season progress"}, fmt.Errorf("persist xp: %w", err)
	}
	return result, nil
}

// applyXP mutates u in memory without persisting it.
func (s *SeasonPassService) applyXP(ctx context.Context, u *domain.User, amount int, source string, now time.Time) (AddXPResult, error) {
	oldTier, newTier, err := u.AddSeasonXP(amount)
	if err != nil {
		return AddXPResult{Error: err.Error()}, err
	}
	result := AddXPResult{
		Success: true,
		XPAdded: amount,
		NewXP:   u.SeasonPassXP,
		OldTier: oldTier,
		NewTier: newTier,
	}
	if amount > 0 {
		metrics.XPGranted.WithLabelValues(source).Add(float64(amount))
	}
	if newTier <= oldTier {
		return result, nil
	}

	// A large grant can cross several thresholds at once.
	result.TierUp = true
	for tier := oldTier + 1; tier <= newTier; tier++ {
		result.TiersGained = append(result.TiersGained, tier)
	}
	metrics.TierUps.Add(float64(newTier - oldTier))

	available, err := s.newlyUnlocked(ctx, u.ID, oldTier, newTier, now)
	if err != nil {
		return result, err
	}
	result.RewardsAvailable = available

	s.log.Info("season tier up",
		"user_id", u.ID,
		"source", source,
		"old_tier", oldTier,
		"new_tier", newTier,
		"rewards_available", available,
	)
	return result, nil
}

// newlyUnlocked counts unclaimed rewards of the current season in tiers
// (oldTier, newTier].
func (s *SeasonPassService) newlyUnlocked(ctx context.Context, userID string, oldTier, newTier int, now time.Time) (int, error) {
	season, err := s.repo.GetCurrentSeason(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("get current season: %w", err)
	}
	if season == nil {
		return 0, nil
	}
	rewards, err := s.repo.GetSeasonRewards(ctx, season.ID)
	if err != nil {
		return 0, fmt.Errorf("get season rewards: %w", err)
	}
	claimed, err := s.claimedSet(ctx, userID, season.ID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range rewards {
		if r.Tier > oldTier && r.Tier <= newTier && !claimed[r.ID] {
			count++
		}
	}
	return count, nil
}

func (s *SeasonPassService) claimedSet(ctx context.Context, userID, seasonID string) (map[string]bool, error) {
	ids, err := s.repo.GetClaimedRewardIDs(ctx, userID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("get claimed rewards: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ClaimReward claims rewardID for u. The claim is recorded before the
// reward is granted and removed again if granting fails, so a reward is
// handed out at most once per user.
func (s *SeasonPassService) ClaimReward(ctx context.Context, u *domain.User, rewardID string) (ClaimResult, error) {
	return s.ClaimRewardAt(ctx, u, rewardID, time.Now())
}

// ClaimRewardAt is ClaimReward with an explicit claim timestamp.
func (s *SeasonPassService) ClaimRewardAt(ctx context.Context, u *domain.User, rewardID string, now time.Time) (ClaimResult, error) {
	reward, err := s.repo.GetSeasonRewardByID(ctx, rewardID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("get reward: %w", err)
	}
	if reward == nil {
		return s.fail("not_found", "Reward not found"), nil
	}
	// Tier and XP are reset every season, so they only unlock rewards of
	// the season running now.
	season, err := s.repo.GetCurrentSeason(ctx, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("get current season: %w", err)
	}
	if season == nil || season.ID != reward.SeasonID {
		return s.fail("wrong_season", "Reward is not part of the current season"), nil
	}
	if u.CurrentSeasonTier < reward.Tier {
		return s.fail("insufficient_tier", fmt.Sprintf(
			"Insufficient tier: reward requires tier %d, current tier is %d",
			reward.Tier, u.CurrentSeasonTier)), nil
	}

	claimed, err := s.claimedSet(ctx, u.ID, reward.SeasonID)
	if err != nil {
		return ClaimResult{}, err
	}
	if claimed[reward.ID] {
		return s.fail("already_claimed", "Reward has already been claimed"), nil
	}

	won, err := s.repo.TryAddClaimedReward(ctx, u.ID, reward.ID, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("record claim: %w", err)
	}
	if !won {
		// Lost the race against a concurrent claim.
		return s.fail("already_claimed", "Reward has already been claimed"), nil
	}

	if res, err := s.grant(ctx, u, reward); err != nil || !res.Success {
		if rbErr := s.repo.RemoveClaimedReward(ctx, u.ID, reward.ID); rbErr != nil {
			s.log.Error("claim rollback failed",
				"user_id", u.ID,
				"reward_id", reward.ID,
				"error", rbErr,
			)
		}
		metrics.RewardClaims.WithLabelValues("grant_failed").Inc()
		return res, err
	}

	metrics.RewardClaims.WithLabelValues("claimed").Inc()
	s.log.Info("reward claimed",
		"user_id", u.ID,
		"reward_id", reward.ID,
		"reward_type", reward.RewardType,
	)
	return ClaimResult{
		Success:     true,
		RewardType:  reward.RewardType,
		RewardValue: reward.RewardValue,
	}, nil
}

func (s *SeasonPassService) grant(ctx context.Context, u *domain.User, reward *domain.SeasonReward) (ClaimResult, error) {
	switch reward.RewardType {
	case domain.RewardCosmetic:
		ok, err := s.cosmetics.GrantCosmetic(ctx, u.ID, reward.RewardValue, SourceSeasonPass)
		if err != nil {
			return ClaimResult{Error: "Failed to grant reward"}, fmt.Errorf("grant cosmetic: %w", err)
		}
		if !ok {
			return ClaimResult{Error: "Failed to grant reward"}, nil
		}

	case domain.RewardStreakFreeze:
		n, err := strconv.Atoi(reward.RewardValue)
		if err != nil {
			return ClaimResult{Error: "Failed to grant reward: invalid token count"}, nil
		}
		if err := u.AddFreezeTokens(n); err != nil {
			return ClaimResult{Error: "Failed to grant reward: invalid token count"}, nil
		}
		if err := s.users.Update(ctx, u); err != nil {
			u.StreakFreezeTokens -= n
			return ClaimResult{Error: "Failed to grant reward"}, fmt.Errorf("persist freeze tokens: %w", err)
		}

	case domain.RewardXPBoost:
		// Applies to future grants; claiming only records it.
	}
	return ClaimResult{Success: true}, nil
}

func (s *SeasonPassService) fail(outcome, msg string) ClaimResult {
	metrics.RewardClaims.WithLabelValues(outcome).Inc()
	return ClaimResult{Error: msg}
}

// Status returns u's season pass view at now. Season is nil between seasons.
func (s *SeasonPassService) Status(ctx context.Context, u *domain.User, now time.Time) (*SeasonPassStatus, error) {
	status := &SeasonPassStatus{
		XP:      u.SeasonPassXP,
		Tier:    u.CurrentSeasonTier,
		Rewards: []RewardStatus{},
	}
	if u.CurrentSeasonTier < domain.MaxTier {
		status.NextTierXP = domain.XPForTier(u.CurrentSeasonTier + 1)
	}

	season, err := s.repo.GetCurrentSeason(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("get current season: %w", err)
	}
	if season == nil {
		return status, nil
	}
	status.Season = season

	rewards, err := s.repo.GetSeasonRewards(ctx, season.ID)
	if err != nil {
		return nil, fmt.Errorf("get season rewards: %w", err)
	}
	claimed, err := s.claimedSet(ctx, u.ID, season.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range rewards {
		status.Rewards = append(status.Rewards, RewardStatus{
			SeasonReward: r,
			Claimed:      claimed[r.ID],
			Claimable:    !claimed[r.ID] && r.Tier <= u.CurrentSeasonTier,
		})
	}
	return status, nil
}
