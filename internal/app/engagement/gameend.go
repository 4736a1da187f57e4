package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// DefaultGameXP is the season XP granted for finishing any game.
const DefaultGameXP = 10

// GameEndResult summarizes everything one finished game changed.
type GameEndResult struct {
	SessionID            string                 `json:"session_id"`
	Streak               StreakResult           `json:"streak"`
	CompletedChallenges  []*domain.Challenge    `json:"completed_challenges,omitempty"`
	UnlockedAchievements []*domain.Achievement  `json:"unlocked_achievements,omitempty"`
	CompletedGoals       []*domain.PersonalGoal `json:"completed_goals,omitempty"`
	XPGained             int                    `json:"xp_gained"`
	SeasonPass           AddXPResult            `json:"season_pass"`
}

type xpGrant struct {
	source string
	amount int
}

// GameEndService runs the gamification pipeline for a finished game.
type GameEndService struct {
	users        domain.UserRepository
	sessions     domain.GameSessionRepository
	pass         *SeasonPassService
	challenges   *ChallengeTracker
	achievements *AchievementService
	goals        *GoalService
	baseXP       int
	log          *logger.Logger
	now          func() time.Time
}

// NewGameEndService wires the pipeline. baseXP <= 0 selects DefaultGameXP.
func NewGameEndService(
	users domain.UserRepository,
	sessions domain.GameSessionRepository,
	pass *SeasonPassService,
	challenges *ChallengeTracker,
	achievements *AchievementService,
	goals *GoalService,
	baseXP int,
	log *logger.Logger,
) *GameEndService {
	if baseXP <= 0 {
		baseXP = DefaultGameXP
	}
	return &GameEndService{
		users:        users,
		sessions:     sessions,
		pass:         pass,
		challenges:   challenges,
		achievements: achievements,
		goals:        goals,
		baseXP:       baseXP,
		log:          log.With("service", "game_end"),
		now:          time.Now,
	}
}

// ProcessGameEnd applies a finished session to its owner: lifetime stats,
// streak, challenges, season XP, achievements and personal goals. The user
// row is written once, before the challenge, achievement and goal rows. A
// session feeds the pipeline at most once; a repeat returns
// domain.ErrSessionAlreadyProcessed. If the pipeline fails before the user
// row is written the session is released and can be processed again.
func (s *GameEndService) ProcessGameEnd(ctx context.Context, userID, sessionID string) (*GameEndResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	game, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if game.UserID != u.ID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionOwnerMismatch, sessionID)
	}
	if !game.IsEnded() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotEnded, sessionID)
	}

	first, err := s.sessions.MarkProcessed(ctx, game.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark session processed: %w", err)
	}
	if !first {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionAlreadyProcessed, sessionID)
	}

	result, userSaved, err := s.run(ctx, u, game)
	if err != nil {
		if !userSaved {
			if rerr := s.sessions.ReleaseProcessed(context.WithoutCancel(ctx), game.ID); rerr != nil {
				s.log.Error("release session failed", "session_id", game.ID, "error", rerr)
			}
		}
		return nil, err
	}

	s.log.Info("game processed",
		"user_id", u.ID,
		"session_id", game.ID,
		"streak", u.CurrentStreak,
		"xp", result.XPGained,
		"challenges", len(result.CompletedChallenges),
		"achievements", len(result.UnlockedAchievements),
	)
	return result, nil
}

// run computes every change in memory, writes the user and then the
// per-aggregate rows. userSaved reports whether the user write happened.
func (s *GameEndService) run(ctx context.Context, u *domain.User, game *domain.GameSession) (result *GameEndResult, userSaved bool, err error) {
	at := *game.EndedAt
	result = &GameEndResult{SessionID: game.ID}
	result.SeasonPass = AddXPResult{Success: true, OldTier: u.CurrentSeasonTier, NewTier: u.CurrentSeasonTier}

	u.RecordGame(game)
	result.Streak, _ = applyStreak(u, at)

	challengeRows, completed, err := s.challenges.apply(ctx, u.ID, game, at)
	if err != nil {
		return nil, false, err
	}
	result.CompletedChallenges = completed

	grants := []xpGrant{{SourceGame, s.baseXP}}
	for _, c := range completed {
		grants = append(grants, xpGrant{SourceChallenge, c.XPReward})
	}
	if err := s.grantXP(ctx, u, result, grants, at); err != nil {
		return nil, false, err
	}

	// Achievements see this game's stats, streak and XP. Unlock XP can
	// reach another SeasonTier target, so repeat until nothing unlocks.
	pass, err := s.achievements.begin(ctx, u.ID)
	if err != nil {
		return nil, false, err
	}
	for {
		unlocked, err := pass.evaluate(u, at)
		if err != nil {
			return nil, false, err
		}
		if len(unlocked) == 0 {
			break
		}
		result.UnlockedAchievements = append(result.UnlockedAchievements, unlocked...)
		grants = grants[:0]
		for _, a := range unlocked {
			grants = append(grants, xpGrant{SourceAchievement, a.XPReward})
		}
		if err := s.grantXP(ctx, u, result, grants, at); err != nil {
			return nil, false, err
		}
	}

	goalRows, completedGoals, err := s.goals.apply(ctx, u.ID, game, at)
	if err != nil {
		return nil, false, err
	}
	result.CompletedGoals = completedGoals

	result.SeasonPass.XPAdded = result.XPGained
	result.SeasonPass.NewXP = u.SeasonPassXP
	result.SeasonPass.NewTier = u.CurrentSeasonTier

	if err := s.users.Update(ctx, u); err != nil {
		return nil, false, fmt.Errorf("persist user: %w", err)
	}
	if err := s.challenges.save(ctx, challengeRows); err != nil {
		return nil, true, err
	}
	if err := s.achievements.save(ctx, pass); err != nil {
		return nil, true, err
	}
	if err := s.goals.save(ctx, goalRows); err != nil {
		return nil, true, err
	}
	return result, true, nil
}

func (s *GameEndService) grantXP(ctx context.Context, u *domain.User, result *GameEndResult, grants []xpGrant, at time.Time) error {
	for _, g := range grants {
		r, err := s.pass.applyXP(ctx, u, g.amount, g.source, at)
		if err != nil {
			return err
		}
		result.XPGained += g.amount
		result.SeasonPass.TiersGained = append(result.SeasonPass.TiersGained, r.TiersGained...)
		result.SeasonPass.RewardsAvailable += r.RewardsAvailable
		result.SeasonPass.TierUp = result.SeasonPass.TierUp || r.TierUp
	}
	return nil
}

// HandleGameEnded is the message-queue entry point. Duplicate deliveries
// are acknowledged silently.
func (s *GameEndService) HandleGameEnded(ctx context.Context, ev domain.GameEndedEvent) error {
	if err := ev.Validate(); err != nil {
		metrics.GameEvents.WithLabelValues("invalid").Inc()
		return err
	}
	_, err := s.ProcessGameEnd(ctx, ev.UserID, ev.SessionID)
	switch {
	case err == nil:
		metrics.GameEvents.WithLabelValues("processed").Inc()
		return nil
	case errors.Is(err, domain.ErrSessionAlreadyProcessed):
		metrics.GameEvents.WithLabelValues("duplicate").Inc()
		s.log.Debug("duplicate game-ended event", "session_id", ev.SessionID)
		return nil
	default:
		metrics.GameEvents.WithLabelValues("failed").Inc()
		return err
	}
}
