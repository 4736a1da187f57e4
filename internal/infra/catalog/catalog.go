// Package catalog loads game content (cosmetics, seasons and their
// rewards, challenge templates, achievements) from TOML and seeds it into
// storage. Default is the built-in starter catalog used when no file is
// given.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// Catalog is the content of one catalog file.
type Catalog struct {
	Cosmetics    []CosmeticEntry    `toml:"cosmetics"`
	Seasons      []SeasonEntry      `toml:"seasons"`
	Templates    []TemplateEntry    `toml:"challenge_templates"`
	Achievements []AchievementEntry `toml:"achievements"`
}

// CosmeticEntry describes a cosmetic item. IDs are stable because season
// rewards refer to them.
type CosmeticEntry struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

// SeasonEntry describes a season and its tier rewards.
type SeasonEntry struct {
	Number  int           `toml:"number"`
	Name    string        `toml:"name"`
	Theme   string        `toml:"theme"`
	Start   time.Time     `toml:"start"`
	End     time.Time     `toml:"end"`
	Rewards []RewardEntry `toml:"rewards"`
}

// RewardEntry is one season pass reward.
type RewardEntry struct {
	Tier  int    `toml:"tier"`
	Name  string `toml:"name"`
	Type  string `toml:"type"`
	Value string `toml:"value"`
}

// TemplateEntry is a challenge blueprint. An empty GoalType makes a
// legacy challenge scored from its description.
type TemplateEntry struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Type        string `toml:"type"`
	Target      int    `toml:"target"`
	XPReward    int    `toml:"xp_reward"`
	GoalType    string `toml:"goal_type"`
}

// AchievementEntry is one achievement definition.
type AchievementEntry struct {
	Code        string `toml:"code"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Condition   string `toml:"condition"`
	Target      int    `toml:"target"`
	XPReward    int    `toml:"xp_reward"`
}

// Load decodes a catalog file.
func Load(path string) (*Catalog, error) {
	var c Catalog
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown catalog keys %v", domain.ErrValidation, undecoded)
	}
	return &c, nil
}

// ─── Seeding ────────────────────────────────────────────────────────────────

// CosmeticStore is the part of the cosmetic repository seeding needs.
type CosmeticStore interface {
	AddCosmetic(ctx context.Context, c *domain.Cosmetic) error
	GetCosmetic(ctx context.Context, id string) (*domain.Cosmetic, error)
}

// Stores are the repositories a catalog is written to.
type Stores struct {
	Gamification domain.GamificationRepository
	Achievements domain.AchievementRepository
	Cosmetics    CosmeticStore
}

// Summary counts what Apply created.
type Summary struct {
	Cosmetics    int `json:"cosmetics"`
	Seasons      int `json:"seasons"`
	Rewards      int `json:"rewards"`
	Templates    int `json:"templates"`
	Achievements int `json:"achievements"`
}

// Apply writes c through the domain factories. It is idempotent: entries
// already present (cosmetics by id, seasons by number, templates by type
// and name, achievements by code) are skipped. Seasons are created
// inactive; the season transition job activates them.
func Apply(ctx context.Context, s Stores, c *Catalog, log *logger.Logger) (Summary, error) {
	var sum Summary

	for _, e := range c.Cosmetics {
		existing, err := s.Cosmetics.GetCosmetic(ctx, e.ID)
		if err != nil {
			return sum, fmt.Errorf("get cosmetic %s: %w", e.ID, err)
		}
		if existing != nil {
			continue
		}
		item, err := domain.NewCosmetic(e.ID, e.Name, domain.CosmeticKind(e.Kind))
		if err != nil {
			return sum, fmt.Errorf("cosmetic %q: %w", e.ID, err)
		}
		if err := s.Cosmetics.AddCosmetic(ctx, item); err != nil {
			return sum, fmt.Errorf("add cosmetic %s: %w", e.ID, err)
		}
		sum.Cosmetics++
	}

	seasons, err := s.Gamification.GetAllSeasons(ctx)
	if err != nil {
		return sum, fmt.Errorf("list seasons: %w", err)
	}
	known := make(map[int]bool, len(seasons))
	for _, season := range seasons {
		known[season.Number] = true
	}
	for _, e := range c.Seasons {
		if known[e.Number] {
			continue
		}
		rewards, err := applySeason(ctx, s.Gamification, e)
		if err != nil {
			return sum, err
		}
		known[e.Number] = true
		sum.Seasons++
		sum.Rewards += rewards
	}

	for _, e := range c.Templates {
		created, err := applyTemplate(ctx, s.Gamification, e)
		if err != nil {
			return sum, err
		}
		if created {
			sum.Templates++
		}
	}

	achievements, err := s.Achievements.ListAchievements(ctx)
	if err != nil {
		return sum, fmt.Errorf("list achievements: %w", err)
	}
	codes := make(map[string]bool, len(achievements))
	for _, a := range achievements {
		codes[a.Code] = true
	}
	for _, e := range c.Achievements {
		if codes[e.Code] {
			continue
		}
		cond, err := domain.ParseAchievementCondition(e.Condition)
		if err != nil {
			return sum, fmt.Errorf("achievement %q: %w", e.Code, err)
		}
		a, err := domain.NewAchievement(e.Code, e.Name, e.Description, cond, e.Target, e.XPReward)
		if err != nil {
			return sum, fmt.Errorf("achievement %q: %w", e.Code, err)
		}
		if err := s.Achievements.AddAchievement(ctx, a); err != nil {
			return sum, fmt.Errorf("add achievement %s: %w", e.Code, err)
		}
		codes[e.Code] = true
		sum.Achievements++
	}

	log.Info("catalog applied",
		"cosmetics", sum.Cosmetics,
		"seasons", sum.Seasons,
		"rewards", sum.Rewards,
		"templates", sum.Templates,
		"achievements", sum.Achievements,
	)
	return sum, nil
}

func applySeason(ctx context.Context, repo domain.GamificationRepository, e SeasonEntry) (int, error) {
	season, err := domain.NewSeason(e.Name, e.Number, e.Theme, e.Start, e.End)
	if err != nil {
		return 0, fmt.Errorf("season %d: %w", e.Number, err)
	}
	// Validate every reward before writing anything for this season.
	rewards := make([]*domain.SeasonReward, 0, len(e.Rewards))
	for _, re := range e.Rewards {
		rt, err := domain.ParseRewardType(re.Type)
		if err != nil {
			return 0, fmt.Errorf("season %d tier %d: %w", e.Number, re.Tier, err)
		}
		r, err := domain.NewSeasonReward(season.ID, re.Tier, re.Name, rt, re.Value)
		if err != nil {
			return 0, fmt.Errorf("season %d tier %d: %w", e.Number, re.Tier, err)
		}
		rewards = append(rewards, r)
	}

	if err := repo.AddSeason(ctx, season); err != nil {
		return 0, fmt.Errorf("add season %d: %w", e.Number, err)
	}
	for _, r := range rewards {
		if err := repo.AddSeasonReward(ctx, r); err != nil {
			return 0, fmt.Errorf("add reward: %w", err)
		}
	}
	return len(rewards), nil
}

func applyTemplate(ctx context.Context, repo domain.GamificationRepository, e TemplateEntry) (bool, error) {
	ct, err := domain.ParseChallengeType(e.Type)
	if err != nil {
		return false, fmt.Errorf("template %q: %w", e.Name, err)
	}
	existing, err := repo.GetChallengeTemplates(ctx, ct)
	if err != nil {
		return false, fmt.Errorf("list templates: %w", err)
	}
	for _, t := range existing {
		if t.Name == e.Name {
			return false, nil
		}
	}
	goal, err := domain.ParseGoalType(e.GoalType)
	if err != nil {
		return false, fmt.Errorf("template %q: %w", e.Name, err)
	}
	t, err := domain.NewChallengeTemplate(e.Name, e.Description, ct, e.Target, e.XPReward, goal)
	if err != nil {
		return false, fmt.Errorf("template %q: %w", e.Name, err)
	}
	if err := repo.AddChallengeTemplate(ctx, t); err != nil {
		return false, fmt.Errorf("add template %q: %w", e.Name, err)
	}
	return true, nil
}
