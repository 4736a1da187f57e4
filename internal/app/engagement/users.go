package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// UserService registers players and edits their profile.
type UserService struct {
	users domain.UserRepository
	log   *logger.Logger
}

// NewUserService creates a user service.
func NewUserService(users domain.UserRepository, log *logger.Logger) *UserService {
	return &UserService{users: users, log: log.With("service", "users")}
}

// Create registers a new player. Display names are unique ignoring case;
// a non-empty timezone must be a known IANA zone.
func (s *UserService) Create(ctx context.Context, externalID, email, displayName, timezone string, now time.Time) (*domain.User, error) {
	u, err := domain.NewUser(externalID, email, displayName, timezone, now)
	if err != nil {
		return nil, err
	}
	if u.Timezone != "" && !IsValidTimezone(u.Timezone) {
		return nil, fmt.Errorf("%w: %w %q", domain.ErrValidation, domain.ErrInvalidTimezone, u.Timezone)
	}
	taken, err := s.users.IsUsernameTaken(ctx, u.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("check display name: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: %q", domain.ErrUsernameTaken, u.DisplayName)
	}
	if err := s.users.Add(ctx, u); err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	s.log.Info("user created", "user_id", u.ID, "timezone", u.Timezone)
	return u, nil
}

// Get loads a user or fails with domain.ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
	}
	return u, nil
}

// SetTimezone changes the zone used for the user's streak days.
func (s *UserService) SetTimezone(ctx context.Context, id, timezone string) (*domain.User, error) {
	if !IsValidTimezone(timezone) {
		return nil, fmt.Errorf("%w: %w %q", domain.ErrValidation, domain.ErrInvalidTimezone, timezone)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.SetTimezone(timezone)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}
