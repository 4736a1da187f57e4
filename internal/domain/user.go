// Package domain holds the gamification entities, their factories and the
// repository contracts the application layer depends on.
//
// Entities expose their state as exported fields so repositories can
// reconstitute them, but calling code mutates them only through the named
// operations defined here.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the aggregate root for all gamification state.
type User struct {
	ID          string `json:"id"`
	ExternalID  string `json:"external_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone,omitempty"` // IANA name; empty means UTC

	CurrentStreak      int   `json:"current_streak"`
	LongestStreak      int   `json:"longest_streak"`
	StreakFreezeTokens int   `json:"streak_freeze_tokens"`
	LastPlayedDate     *Date `json:"last_played_date,omitempty"`

	SeasonPassXP      int `json:"season_pass_xp"`
	CurrentSeasonTier int `json:"current_season_tier"`

	LastStreakNotificationSentAt *time.Time `json:"last_streak_notification_sent_at,omitempty"`

	GamesPlayed       int `json:"games_played"`
	HighScore         int `json:"high_score"`
	TotalLinesCleared int `json:"total_lines_cleared"`

	CreatedAt time.Time `json:"created_at"`
}

// NewUser validates and creates a user with zeroed gamification state.
func NewUser(externalID, email, displayName, timezone string, now time.Time) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	displayName = strings.TrimSpace(displayName)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrValidation)
	}
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrValidation)
	}
	return &User{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		Email:       strings.TrimSpace(email),
		DisplayName: displayName,
		Timezone:    strings.TrimSpace(timezone),
		CreatedAt:   now.UTC(),
	}, nil
}

// HasEmail reports whether the user can receive email.
func (u *User) HasEmail() bool {
	return strings.TrimSpace(u.Email) != ""
}

// SetTimezone replaces the user's IANA timezone. Validation of the name is
// the caller's concern; an unknown zone resolves as UTC anyway.
func (u *User) SetTimezone(tz string) {
	u.Timezone = strings.TrimSpace(tz)
}

// ─── Streak Operations ──────────────────────────────────────────────────────

// ExtendStreak counts day as another consecutive day of play.
func (u *User) ExtendStreak(day Date) {
	u.CurrentStreak++
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.LastPlayedDate = &day
}

// RestartStreak starts a new streak of one day at day.
func (u *User) RestartStreak(day Date) {
	u.CurrentStreak = 1
	if u.LongestStreak < 1 {
		u.LongestStreak = 1
	}
	u.LastPlayedDate = &day
}

// ConsumeFreezeToken spends one token. Returns false if none are left.
func (u *User) ConsumeFreezeToken() bool {
	if u.StreakFreezeTokens <= 0 {
		return false
	}
	u.StreakFreezeTokens--
	return true
}

// AddFreezeTokens grants n freeze tokens.
func (u *User) AddFreezeTokens(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: freeze token count must not be negative", ErrValidation)
	}
	u.StreakFreezeTokens += n
	return nil
}

// ─── Season Pass Operations ─────────────────────────────────────────────────

// AddSeasonXP adds amount to the season XP and re-derives the tier.
func (u *User) AddSeasonXP(amount int) (oldTier, newTier int, err error) {
	if amount < 0 {
		return u.CurrentSeasonTier, u.CurrentSeasonTier,
			fmt.Errorf("%w: xp amount must not be negative", ErrValidation)
	}
	oldTier = u.CurrentSeasonTier
	u.SeasonPassXP += amount
	u.CurrentSeasonTier = TierForXP(u.SeasonPassXP)
	return oldTier, u.CurrentSeasonTier, nil
}

// ResetSeasonProgress clears season XP and tier at a season boundary.
func (u *User) ResetSeasonProgress() {
	u.SeasonPassXP = 0
	u.CurrentSeasonTier = 0
}

// ─── Lifetime Stats ─────────────────────────────────────────────────────────

// RecordGame folds a finished session into the lifetime counters.
func (u *User) RecordGame(s *GameSession) {
	u.GamesPlayed++
	u.TotalLinesCleared += s.LinesCleared
	if s.Score > u.HighScore {
		u.HighScore = s.Score
	}
}
