package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// AchievementProgress is a catalog entry with one user's progress on it.
type AchievementProgress struct {
	*domain.Achievement
	Progress   int        `json:"progress"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementService tracks achievement progress from a user's lifetime
// stats.
type AchievementService struct {
	repo domain.AchievementRepository
	log  *logger.Logger
}

// NewAchievementService creates an achievement service.
func NewAchievementService(repo domain.AchievementRepository, log *logger.Logger) *AchievementService {
	return &AchievementService{repo: repo, log: log.With("service", "achievements")}
}

// Evaluate recomputes u's progress on every achievement and returns the
// ones unlocked by this call. Only changed rows are written.
func (s *AchievementService) Evaluate(ctx context.Context, u *domain.User, now time.Time) ([]*domain.Achievement, error) {
	pass, err := s.begin(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	unlocked, err := pass.evaluate(u, now)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, pass); err != nil {
		return nil, err
	}
	return unlocked, nil
}

// achievementPass holds one user's achievement rows in memory so they can
// be evaluated several times before a single save.
type achievementPass struct {
	userID  string
	catalog []*domain.Achievement
	rows    map[string]*domain.UserAchievement
	changed map[string]bool
}

func (s *AchievementService) begin(ctx context.Context, userID string) (*achievementPass, error) {
	catalog, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	rows, err := s.byAchievement(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &achievementPass{
		userID:  userID,
		catalog: catalog,
		rows:    rows,
		changed: make(map[string]bool),
	}, nil
}

// evaluate returns the achievements unlocked since the previous call.
func (p *achievementPass) evaluate(u *domain.User, now time.Time) ([]*domain.Achievement, error) {
	var unlocked []*domain.Achievement
	for _, a := range p.catalog {
		ua := p.rows[a.ID]
		if ua == nil {
			var err error
			if ua, err = domain.NewUserAchievement(p.userID, a.ID); err != nil {
				return nil, err
			}
			p.rows[a.ID] = ua
		}
		if ua.IsUnlocked() {
			continue
		}
		before := ua.Progress
		done := ua.UpdateProgress(a.ProgressFor(u), now)
		if !done && ua.Progress == before {
			continue
		}
		p.changed[a.ID] = true
		if done {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

func (s *AchievementService) save(ctx context.Context, p *achievementPass) error {
	for _, a := range p.catalog {
		if !p.changed[a.ID] {
			continue
		}
		ua := p.rows[a.ID]
		if err := s.repo.SaveUserAchievement(ctx, ua); err != nil {
			return fmt.Errorf("save user achievement: %w", err)
		}
		if ua.IsUnlocked() {
			s.log.Info("achievement unlocked", "user_id", p.userID, "code", a.Code)
		}
	}
	return nil
}

// List returns the whole catalog with userID's progress.
func (s *AchievementService) List(ctx context.Context, userID string) ([]AchievementProgress, error) {
	catalog, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	existing, err := s.byAchievement(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AchievementProgress, 0, len(catalog))
	for _, a := range catalog {
		p := AchievementProgress{Achievement: a}
		if ua := existing[a.ID]; ua != nil {
			p.Progress = ua.Progress
			p.UnlockedAt = ua.UnlockedAt
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *AchievementService) byAchievement(ctx context.Context, userID string) (map[string]*domain.UserAchievement, error) {
	rows, err := s.repo.GetUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user achievements: %w", err)
	}
	m := make(map[string]*domain.UserAchievement, len(rows))
	for _, ua := range rows {
		m[ua.AchievementID] = ua
	}
	return m, nil
}
