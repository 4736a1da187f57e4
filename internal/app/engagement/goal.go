package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// GoalService manages user-defined personal goals.
type GoalService struct {
	repo domain.PersonalGoalRepository
	log  *logger.Logger
}

// NewGoalService creates a personal goal service.
func NewGoalService(repo domain.PersonalGoalRepository, log *logger.Logger) *GoalService {
	return &GoalService{repo: repo, log: log.With("service", "goals")}
}

// Create validates and stores a new goal.
func (s *GoalService) Create(ctx context.Context, userID, title string, metric domain.GoalMetric, target int, deadline *time.Time, now time.Time) (*domain.PersonalGoal, error) {
	g, err := domain.NewPersonalGoal(userID, title, metric, target, deadline, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddGoal(ctx, g); err != nil {
		return nil, fmt.Errorf("add goal: %w", err)
	}
	return g, nil
}

// List returns all of userID's goals.
func (s *GoalService) List(ctx context.Context, userID string) ([]*domain.PersonalGoal, error) {
	goals, err := s.repo.GetGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get goals: %w", err)
	}
	return goals, nil
}

// RecordGame advances every open goal of userID and returns the goals this
// game completed. Completed and expired goals are left alone.
func (s *GoalService) RecordGame(ctx context.Context, userID string, game *domain.GameSession, now time.Time) ([]*domain.PersonalGoal, error) {
	changed, completed, err := s.apply(ctx, userID, game, now)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, changed); err != nil {
		return nil, err
	}
	return completed, nil
}

func (s *GoalService) apply(ctx context.Context, userID string, game *domain.GameSession, now time.Time) (changed, completed []*domain.PersonalGoal, err error) {
	goals, err := s.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	for _, g := range goals {
		if g.IsCompleted() || g.IsExpired(now) {
			continue
		}
		delta := goalDelta(g.Metric, game)
		if delta == 0 {
			continue
		}
		done, err := g.UpdateProgress(delta, now)
		if err != nil {
			return nil, nil, err
		}
		changed = append(changed, g)
		if done {
			completed = append(completed, g)
		}
	}
	return changed, completed, nil
}

func (s *GoalService) save(ctx context.Context, goals []*domain.PersonalGoal) error {
	for _, g := range goals {
		if err := s.repo.UpdateGoal(ctx, g); err != nil {
			return fmt.Errorf("update goal: %w", err)
		}
		if g.IsCompleted() {
			s.log.Info("personal goal completed", "user_id", g.UserID, "goal_id", g.ID)
		}
	}
	return nil
}

func goalDelta(m domain.GoalMetric, game *domain.GameSession) int {
	switch m {
	case domain.MetricScore:
		return game.Score
	case domain.MetricGames:
		return 1
	case domain.MetricLines:
		return game.LinesCleared
	}
	return 0
}
