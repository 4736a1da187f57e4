package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// Challenge windows.
const (
	DailyChallengeDuration  = 24 * time.Hour
	WeeklyChallengeDuration = 7 * 24 * time.Hour
)

// RotationResult reports what one rotation run changed.
type RotationResult struct {
	Deactivated int `json:"deactivated"`
	Created     int `json:"created"`
}

// ChallengeRotationJob retires expired challenges of one type and, when
// none remain live, instantiates every active template of that type.
type ChallengeRotationJob struct {
	repo     domain.GamificationRepository
	kind     domain.ChallengeType
	duration time.Duration
	name     string
	log      *logger.Logger
}

// NewChallengeRotationJob creates a rotation job for challenges of type
// kind lasting duration.
func NewChallengeRotationJob(repo domain.GamificationRepository, kind domain.ChallengeType, duration time.Duration, log *logger.Logger) *ChallengeRotationJob {
	name := NameChallengeDaily
	if kind == domain.ChallengeWeekly {
		name = NameChallengeWeekly
	}
	return &ChallengeRotationJob{
		repo:     repo,
		kind:     kind,
		duration: duration,
		name:     name,
		log:      log.With("job", name),
	}
}

// NewDailyRotationJob rotates daily challenges.
func NewDailyRotationJob(repo domain.GamificationRepository, log *logger.Logger) *ChallengeRotationJob {
	return NewChallengeRotationJob(repo, domain.ChallengeDaily, DailyChallengeDuration, log)
}

// NewWeeklyRotationJob rotates weekly challenges.
func NewWeeklyRotationJob(repo domain.GamificationRepository, log *logger.Logger) *ChallengeRotationJob {
	return NewChallengeRotationJob(repo, domain.ChallengeWeekly, WeeklyChallengeDuration, log)
}

// Name implements Job.
func (j *ChallengeRotationJob) Name() string { return j.name }

// Run implements Job.
func (j *ChallengeRotationJob) Run(ctx context.Context) error {
	return j.ExecuteRotation(ctx)
}

// ExecuteRotation rotates at the current time.
func (j *ChallengeRotationJob) ExecuteRotation(ctx context.Context) error {
	_, err := j.ExecuteRotationAt(ctx, time.Now())
	return err
}

// ExecuteRotationAt rotates as of now.
func (j *ChallengeRotationJob) ExecuteRotationAt(ctx context.Context, now time.Time) (RotationResult, error) {
	var result RotationResult

	active, err := j.repo.GetActiveChallenges(ctx, j.kind)
	if err != nil {
		return result, fmt.Errorf("get active challenges: %w", err)
	}
	for _, c := range active {
		if !c.IsExpired(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c.Deactivate()
		if err := j.repo.UpdateChallenge(ctx, c); err != nil {
			return result, fmt.Errorf("deactivate challenge %s: %w", c.ID, err)
		}
		result.Deactivated++
	}

	if hasValidActiveChallenge(active, now) {
		j.log.Debug("live challenges present, skipping creation", "deactivated", result.Deactivated)
		return result, nil
	}

	templates, err := j.repo.GetChallengeTemplates(ctx, j.kind)
	if err != nil {
		return result, fmt.Errorf("get challenge templates: %w", err)
	}
	for _, t := range templates {
		if !t.IsActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c, err := domain.CreateFromTemplate(t, now, j.duration)
		if err != nil {
			return result, fmt.Errorf("instantiate template %s: %w", t.ID, err)
		}
		added, err := j.repo.TryAddChallenge(ctx, c, now)
		if err != nil {
			return result, fmt.Errorf("add challenge: %w", err)
		}
		if !added {
			// Another runner created it first.
			continue
		}
		result.Created++
		metrics.ChallengesCreated.WithLabelValues(string(j.kind)).Inc()
	}

	j.log.Info("challenges rotated",
		"deactivated", result.Deactivated,
		"created", result.Created,
	)
	return result, nil
}

// hasValidActiveChallenge reports whether any challenge is still active and
// unexpired at now.
func hasValidActiveChallenge(challenges []*domain.Challenge, now time.Time) bool {
	for _, c := range challenges {
		if c.IsActive && !c.IsExpired(now) {
			return true
		}
	}
	return false
}
