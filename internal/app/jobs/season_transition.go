package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// TransitionResult reports what one season transition run changed.
type TransitionResult struct {
	EndedSeasonID     string `json:"ended_season_id,omitempty"`
	ActivatedSeasonID string `json:"activated_season_id,omitempty"`
	Deactivated       int    `json:"deactivated"`
	UsersArchived     int    `json:"users_archived"`
}

// SeasonTransitionJob closes finished seasons and opens the next one.
type SeasonTransitionJob struct {
	users domain.UserRepository
	repo  domain.GamificationRepository
	log   *logger.Logger
}

// NewSeasonTransitionJob creates the season transition job.
func NewSeasonTransitionJob(users domain.UserRepository, repo domain.GamificationRepository, log *logger.Logger) *SeasonTransitionJob {
	return &SeasonTransitionJob{users: users, repo: repo, log: log.With("job", NameSeasonTransition)}
}

// Name implements Job.
func (j *SeasonTransitionJob) Name() string { return NameSeasonTransition }

// Run implements Job.
func (j *SeasonTransitionJob) Run(ctx context.Context) error {
	return j.ExecuteTransition(ctx)
}

// ExecuteTransition transitions at the current time.
func (j *SeasonTransitionJob) ExecuteTransition(ctx context.Context) error {
	_, err := j.ExecuteTransitionAt(ctx, time.Now())
	return err
}

// ExecuteTransitionAt does nothing while a season is running. Otherwise it
// archives and resets every user against the most recently ended season,
// deactivates ended seasons, and activates the inactive season whose range
// contains now, if any.
//
// Users are archived before the ended season is deactivated so an
// interrupted run is finished by the next one; archives are insert-if-absent
// per (user, season), so a reset user is never archived a second time.
func (j *SeasonTransitionJob) ExecuteTransitionAt(ctx context.Context, now time.Time) (TransitionResult, error) {
	var result TransitionResult

	current, err := j.repo.GetCurrentSeason(ctx, now)
	if err != nil {
		return result, fmt.Errorf("get current season: %w", err)
	}
	if current != nil {
		return result, nil
	}

	seasons, err := j.repo.GetAllSeasons(ctx)
	if err != nil {
		return result, fmt.Errorf("get seasons: %w", err)
	}

	var ended []*domain.Season
	var ending *domain.Season
	for _, s := range seasons {
		if s.IsActive && s.HasEnded(now) {
			ended = append(ended, s)
			if ending == nil || s.EndDate.After(ending.EndDate) {
				ending = s
			}
		}
	}

	if ending != nil {
		n, err := j.archiveUsers(ctx, ending, now)
		result.UsersArchived = n
		if err != nil {
			return result, err
		}
		result.EndedSeasonID = ending.ID
	}

	for _, s := range ended {
		s.Deactivate()
		if err := j.repo.UpdateSeason(ctx, s); err != nil {
			return result, fmt.Errorf("deactivate season %s: %w", s.ID, err)
		}
		result.Deactivated++
	}

	if next := nextSeason(seasons, now); next != nil {
		next.Activate()
		if err := j.repo.UpdateSeason(ctx, next); err != nil {
			return result, fmt.Errorf("activate season %s: %w", next.ID, err)
		}
		result.ActivatedSeasonID = next.ID
	}

	if result != (TransitionResult{}) {
		j.log.Info("season transition",
			"ended_season_id", result.EndedSeasonID,
			"activated_season_id", result.ActivatedSeasonID,
			"users_archived", result.UsersArchived,
		)
	}
	return result, nil
}

func (j *SeasonTransitionJob) archiveUsers(ctx context.Context, season *domain.Season, now time.Time) (int, error) {
	users, err := j.users.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("get users: %w", err)
	}
	archived := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		a, err := domain.NewSeasonArchive(u, season.ID, now)
		if err != nil {
			return archived, err
		}
		if err := j.repo.AddSeasonArchive(ctx, a); err != nil {
			return archived, fmt.Errorf("archive user %s: %w", u.ID, err)
		}
		u.ResetSeasonProgress()
		if err := j.users.Update(ctx, u); err != nil {
			return archived, fmt.Errorf("reset user %s: %w", u.ID, err)
		}
		archived++
		metrics.SeasonsArchived.Inc()
	}
	return archived, nil
}

// nextSeason picks the inactive season covering now with the lowest number.
// Future seasons are left for a later run.
func nextSeason(seasons []*domain.Season, now time.Time) *domain.Season {
	var next *domain.Season
	for _, s := range seasons {
		if s.IsActive || !s.Contains(now) {
			continue
		}
		if next == nil || s.Number < next.Number {
			next = s
		}
	}
	return next
}
