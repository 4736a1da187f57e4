package domain

import (
	"context"
	"time"
)

// ─── Repository Interfaces ──────────────────────────────────────────────────
// Infrastructure implements them; the application layer depends on them.
// Getters return (nil, nil) when the row does not exist.

// UserRepository persists the User aggregate.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	Add(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	GetAll(ctx context.Context) ([]*User, error)
	GetUsersWithActiveStreaks(ctx context.Context) ([]*User, error)

	// TryClaimStreakNotification stamps LastStreakNotificationSentAt with now
	// if no notification was sent within cooldown. The check and the write
	// happen in one statement; exactly one concurrent caller gets true.
	TryClaimStreakNotification(ctx context.Context, userID string, cooldown time.Duration, now time.Time) (bool, error)

	IsUsernameTaken(ctx context.Context, displayName string) (bool, error)
}

// GamificationRepository persists seasons, rewards, claims and challenges.
type GamificationRepository interface {
	// Seasons
	GetCurrentSeason(ctx context.Context, now time.Time) (*Season, error)
	GetAllSeasons(ctx context.Context) ([]*Season, error)
	AddSeason(ctx context.Context, s *Season) error
	UpdateSeason(ctx context.Context, s *Season) error

	// AddSeasonArchive is insert-if-absent on (user, season).
	AddSeasonArchive(ctx context.Context, a *SeasonArchive) error

	// Challenges
	GetActiveChallenges(ctx context.Context, t ChallengeType) ([]*Challenge, error)
	GetChallengeTemplates(ctx context.Context, t ChallengeType) ([]*ChallengeTemplate, error)
	AddChallengeTemplate(ctx context.Context, t *ChallengeTemplate) error
	AddChallenge(ctx context.Context, c *Challenge) error

	// TryAddChallenge inserts c unless a live challenge from the same
	// template exists; false means one does.
	TryAddChallenge(ctx context.Context, c *Challenge, now time.Time) (bool, error)
	UpdateChallenge(ctx context.Context, c *Challenge) error
	GetUserChallenge(ctx context.Context, userID, challengeID string) (*UserChallenge, error)
	SaveUserChallenge(ctx context.Context, uc *UserChallenge) error

	// Rewards
	AddSeasonReward(ctx context.Context, r *SeasonReward) error
	GetSeasonRewards(ctx context.Context, seasonID string) ([]*SeasonReward, error)
	GetSeasonRewardByID(ctx context.Context, id string) (*SeasonReward, error)
	GetClaimedRewardIDs(ctx context.Context, userID, seasonID string) ([]string, error)

	// TryAddClaimedReward records the claim if absent; false means another
	// caller already holds it.
	TryAddClaimedReward(ctx context.Context, userID, rewardID string, now time.Time) (bool, error)
	RemoveClaimedReward(ctx context.Context, userID, rewardID string) error
}

// GameSessionRepository reads finalized sessions written by the game engine.
type GameSessionRepository interface {
	GetByID(ctx context.Context, id string) (*GameSession, error)

	// MarkProcessed records that the session fed the gamification pipeline;
	// false means it already did.
	MarkProcessed(ctx context.Context, sessionID string, now time.Time) (bool, error)

	// ReleaseProcessed undoes MarkProcessed so the session can be retried.
	ReleaseProcessed(ctx context.Context, sessionID string) error
}

// AchievementRepository persists the achievement catalog and user progress.
type AchievementRepository interface {
	AddAchievement(ctx context.Context, a *Achievement) error
	ListAchievements(ctx context.Context) ([]*Achievement, error)
	GetUserAchievements(ctx context.Context, userID string) ([]*UserAchievement, error)
	SaveUserAchievement(ctx context.Context, ua *UserAchievement) error
}

// PersonalGoalRepository persists personal goals.
type PersonalGoalRepository interface {
	AddGoal(ctx context.Context, g *PersonalGoal) error
	GetGoals(ctx context.Context, userID string) ([]*PersonalGoal, error)
	UpdateGoal(ctx context.Context, g *PersonalGoal) error
}

// ─── Collaborator Interfaces ────────────────────────────────────────────────

// CosmeticGranter grants and equips cosmetics.
type CosmeticGranter interface {
	// GrantCosmetic returns false if the cosmetic cannot be granted.
	GrantCosmetic(ctx context.Context, userID, cosmeticID, source string) (bool, error)
	UserOwnsCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error)
	EquipCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error)
}

// EmailService delivers transactional email. Errors mean the send failed.
type EmailService interface {
	SendStreakExpiryNotification(ctx context.Context, email, name string, streakLength int, hoursRemaining float64) (bool, error)
}
