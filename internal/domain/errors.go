package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// ErrValidation is wrapped by every factory and domain operation that
	// rejects its input. Check with errors.Is.
	ErrValidation = errors.New("validation failed")

	// Lookup errors
	ErrUserNotFound        = errors.New("user not found")
	ErrSessionNotFound     = errors.New("game session not found")
	ErrSeasonNotFound      = errors.New("season not found")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrGoalNotFound        = errors.New("personal goal not found")
	ErrCosmeticNotFound    = errors.New("cosmetic not found")

	// Game-end pipeline errors
	ErrSessionNotEnded         = errors.New("game session has not ended")
	ErrSessionAlreadyProcessed = errors.New("game session already processed")
	ErrSessionOwnerMismatch    = errors.New("game session belongs to another user")

	// User errors
	ErrUsernameTaken   = errors.New("display name already taken")
	ErrInvalidTimezone = errors.New("unknown IANA timezone")

	// Cosmetic errors
	ErrCosmeticNotOwned = errors.New("cosmetic not owned")

	// Job errors
	ErrUnknownJob = errors.New("unknown job")
)

// IsNotFound reports whether err is one of the lookup errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSeasonNotFound) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrAchievementNotFound) ||
		errors.Is(err, ErrGoalNotFound) ||
		errors.Is(err, ErrCosmeticNotFound)
}
