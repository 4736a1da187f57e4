package catalog

// Default is the built-in starter content: enough cosmetics, templates and
// achievements for a fresh install to run challenge rotation and unlock
// something on the first game. Seasons are left to catalog files since
// they carry calendar dates.
func Default() *Catalog {
	return &Catalog{
		Cosmetics: []CosmeticEntry{
			{ID: "skin-classic", Name: "Classic Blocks", Kind: "BlockSkin"},
			{ID: "skin-neon", Name: "Neon Blocks", Kind: "BlockSkin"},
			{ID: "theme-midnight", Name: "Midnight Board", Kind: "BoardTheme"},
			{ID: "frame-gold", Name: "Gold Frame", Kind: "AvatarFrame"},
		},
		Templates: []TemplateEntry{
			{Name: "Warm Up", Description: "Play 3 games", Type: "Daily", Target: 3, XPReward: 30, GoalType: "GameCount"},
			{Name: "High Roller", Description: "Score 5000 points in a single game", Type: "Daily", Target: 5000, XPReward: 50, GoalType: "ScoreSingleGame"},
			{Name: "Marathon", Description: "Play for 60 minutes", Type: "Daily", Target: 60, XPReward: 40, GoalType: "TimeBased"},
			{Name: "Point Hoarder", Description: "Score 50000 points", Type: "Weekly", Target: 50000, XPReward: 150, GoalType: "ScoreTotal"},
			{Name: "Regular", Description: "Play 20 games", Type: "Weekly", Target: 20, XPReward: 120, GoalType: "GameCount"},
		},
		Achievements: []AchievementEntry{
			{Code: "first-game", Name: "First Drop", Description: "Finish your first game", Condition: "GamesPlayed", Target: 1, XPReward: 25},
			{Code: "games-100", Name: "Centurion", Description: "Finish 100 games", Condition: "GamesPlayed", Target: 100, XPReward: 200},
			{Code: "score-10k", Name: "Five Digits", Description: "Score 10000 in one game", Condition: "HighScore", Target: 10000, XPReward: 100},
			{Code: "lines-1000", Name: "Line Sweeper", Description: "Clear 1000 lines", Condition: "LinesCleared", Target: 1000, XPReward: 150},
			{Code: "streak-7", Name: "Week Warrior", Description: "Play 7 days in a row", Condition: "StreakDays", Target: 7, XPReward: 100},
			{Code: "tier-10", Name: "Pass Holder", Description: "Reach season tier 10", Condition: "SeasonTier", Target: 10, XPReward: 150},
		},
	}
}
