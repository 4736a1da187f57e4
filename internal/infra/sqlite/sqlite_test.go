package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
)

var (
	ctx = context.Background()
	t0  = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addUser(t *testing.T, db *DB, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser("ext-"+name, name+"@example.com", name, "", t0)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := db.Users().Add(ctx, u); err != nil {
		t.Fatalf("Add user: %v", err)
	}
	return u
}

func addSeason(t *testing.T, db *DB, number int, start, end time.Time, active bool) *domain.Season {
	t.Helper()
	s, err := domain.NewSeason("Season", number, "", start, end)
	if err != nil {
		t.Fatalf("NewSeason: %v", err)
	}
	if active {
		s.Activate()
	}
	if err := db.Gamification().AddSeason(ctx, s); err != nil {
		t.Fatalf("AddSeason: %v", err)
	}
	return s
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "blockrush.db")); os.IsNotExist(err) {
		t.Error("blockrush.db should exist")
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

func TestUsers_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	u := addUser(t, db, "alice")

	day := domain.Date{Year: 2025, Month: time.February, Day: 28}
	u.ExtendStreak(day)
	_ = u.AddFreezeTokens(2)
	_, _, _ = u.AddSeasonXP(260)
	u.SetTimezone("America/New_York")
	if err := db.Users().Update(ctx, u); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := db.Users().GetByID(ctx, u.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.CurrentStreak != 1 || got.StreakFreezeTokens != 2 || got.CurrentSeasonTier != 2 {
		t.Errorf("unexpected state: %+v", got)
	}
	if got.LastPlayedDate == nil || *got.LastPlayedDate != day {
		t.Errorf("LastPlayedDate = %v, want %v", got.LastPlayedDate, day)
	}
	if got.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q", got.Timezone)
	}
}

func TestUsers_GetByIDMissing(t *testing.T) {
	db := newTestDB(t)
	u, err := db.Users().GetByID(ctx, "nope")
	if err != nil || u != nil {
		t.Errorf("expected nil, nil; got %v, %v", u, err)
	}
}

func TestUsers_ActiveStreaks(t *testing.T) {
	db := newTestDB(t)
	a := addUser(t, db, "a")
	addUser(t, db, "b")
	a.ExtendStreak(domain.DateOf(t0))
	_ = db.Users().Update(ctx, a)

	users, err := db.Users().GetUsersWithActiveStreaks(ctx)
	if err != nil {
		t.Fatalf("GetUsersWithActiveStreaks: %v", err)
	}
	if len(users) != 1 || users[0].ID != a.ID {
		t.Errorf("got %d users, want only a", len(users))
	}

	all, _ := db.Users().GetAll(ctx)
	if len(all) != 2 {
		t.Errorf("GetAll = %d, want 2", len(all))
	}
}

func TestUsers_IsUsernameTaken(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "Alice")

	taken, err := db.Users().IsUsernameTaken(ctx, "alice")
	if err != nil || !taken {
		t.Errorf("expected case-insensitive match, got %v, %v", taken, err)
	}
	taken, _ = db.Users().IsUsernameTaken(ctx, "bob")
	if taken {
		t.Error("bob should be free")
	}
}

func TestUsers_TryClaimStreakNotification_Cooldown(t *testing.T) {
	db := newTestDB(t)
	u := addUser(t, db, "carol")
	repo := db.Users()

	ok, err := repo.TryClaimStreakNotification(ctx, u.ID, 24*time.Hour, t0)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}
	ok, _ = repo.TryClaimStreakNotification(ctx, u.ID, 24*time.Hour, t0.Add(23*time.Hour))
	if ok {
		t.Error("claim inside cooldown should fail")
	}
	ok, _ = repo.TryClaimStreakNotification(ctx, u.ID, 24*time.Hour, t0.Add(24*time.Hour))
	if !ok {
		t.Error("claim after cooldown should succeed")
	}
}

func TestUsers_TryClaimStreakNotification_Concurrent(t *testing.T) {
	db := newTestDB(t)
	u := addUser(t, db, "dave")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.Users().TryClaimStreakNotification(ctx, u.ID, 24*time.Hour, t0)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestUsers_UpdateDoesNotClearNotificationStamp(t *testing.T) {
	db := newTestDB(t)
	u := addUser(t, db, "erin")
	stale, _ := db.Users().GetByID(ctx, u.ID)

	if ok, _ := db.Users().TryClaimStreakNotification(ctx, u.ID, 24*time.Hour, t0); !ok {
		t.Fatal("claim failed")
	}
	_ = db.Users().Update(ctx, stale)

	got, _ := db.Users().GetByID(ctx, u.ID)
	if got.LastStreakNotificationSentAt == nil || !got.LastStreakNotificationSentAt.Equal(t0) {
		t.Errorf("stamp = %v, want %v", got.LastStreakNotificationSentAt, t0)
	}
}

// ─── Seasons & Rewards ──────────────────────────────────────────────────────

func TestSeasons_GetCurrentSeason(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()
	addSeason(t, db, 1, t0.AddDate(0, -2, 0), t0.AddDate(0, -1, 0), true) // ended but still flagged
	cur := addSeason(t, db, 2, t0.AddDate(0, 0, -1), t0.AddDate(0, 1, 0), true)
	addSeason(t, db, 3, t0.AddDate(0, 1, 0), t0.AddDate(0, 2, 0), false)

	got, err := repo.GetCurrentSeason(ctx, t0)
	if err != nil || got == nil {
		t.Fatalf("GetCurrentSeason: %v, %v", got, err)
	}
	if got.ID != cur.ID {
		t.Errorf("current = season %d, want 2", got.Number)
	}

	got, _ = repo.GetCurrentSeason(ctx, t0.AddDate(0, 1, 1))
	if got != nil {
		t.Errorf("expected no current season, got %d", got.Number)
	}

	all, _ := repo.GetAllSeasons(ctx)
	if len(all) != 3 {
		t.Errorf("GetAllSeasons = %d, want 3", len(all))
	}
}

func TestRewards_ClaimAtMostOnce(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()
	s := addSeason(t, db, 1, t0, t0.AddDate(0, 1, 0), true)
	u := addUser(t, db, "frank")

	rw, _ := domain.NewSeasonReward(s.ID, 1, "", domain.RewardStreakFreeze, "1")
	if err := repo.AddSeasonReward(ctx, rw); err != nil {
		t.Fatalf("AddSeasonReward: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryAddClaimedReward(ctx, u.ID, rw.ID, t0)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}

	ids, _ := repo.GetClaimedRewardIDs(ctx, u.ID, s.ID)
	if len(ids) != 1 || ids[0] != rw.ID {
		t.Errorf("claimed ids = %v", ids)
	}

	if err := repo.RemoveClaimedReward(ctx, u.ID, rw.ID); err != nil {
		t.Fatalf("RemoveClaimedReward: %v", err)
	}
	ids, _ = repo.GetClaimedRewardIDs(ctx, u.ID, s.ID)
	if len(ids) != 0 {
		t.Errorf("claim not removed: %v", ids)
	}
}

func TestRewards_ClaimUnknownReward(t *testing.T) {
	db := newTestDB(t)
	ok, err := db.Gamification().TryAddClaimedReward(ctx, "u", "missing", t0)
	if err != nil || ok {
		t.Errorf("expected false, nil; got %v, %v", ok, err)
	}
}

func TestSeasonArchive_InsertIfAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()
	u := addUser(t, db, "gina")
	_, _, _ = u.AddSeasonXP(900)

	first, _ := domain.NewSeasonArchive(u, "season-1", t0)
	if err := repo.AddSeasonArchive(ctx, first); err != nil {
		t.Fatalf("AddSeasonArchive: %v", err)
	}
	u.ResetSeasonProgress()
	second, _ := domain.NewSeasonArchive(u, "season-1", t0.Add(time.Hour))
	if err := repo.AddSeasonArchive(ctx, second); err != nil {
		t.Fatalf("AddSeasonArchive again: %v", err)
	}

	archives, _ := repo.GetSeasonArchives(ctx, u.ID)
	if len(archives) != 1 {
		t.Fatalf("archives = %d, want 1", len(archives))
	}
	if archives[0].FinalXP != 900 || archives[0].FinalTier != 4 {
		t.Errorf("archive = %+v, want first snapshot", archives[0])
	}
}

// ─── Challenges ─────────────────────────────────────────────────────────────

func TestChallenges_ActiveAndTemplates(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()

	goal := domain.GoalGameCount
	tmpl, _ := domain.NewChallengeTemplate("Play 3", "Play 3 games", domain.ChallengeDaily, 3, 30, &goal)
	legacy, _ := domain.NewChallengeTemplate("Legacy", "Score 1000 points", domain.ChallengeDaily, 1000, 10, nil)
	weekly, _ := domain.NewChallengeTemplate("Weekly", "Play 20 games", domain.ChallengeWeekly, 20, 100, &goal)
	for _, tp := range []*domain.ChallengeTemplate{tmpl, legacy, weekly} {
		if err := repo.AddChallengeTemplate(ctx, tp); err != nil {
			t.Fatalf("AddChallengeTemplate: %v", err)
		}
	}

	daily, _ := repo.GetChallengeTemplates(ctx, domain.ChallengeDaily)
	if len(daily) != 2 {
		t.Fatalf("daily templates = %d, want 2", len(daily))
	}
	for _, d := range daily {
		if d.Name == "Legacy" && d.GoalType != nil {
			t.Error("legacy template should have nil goal type")
		}
	}

	c, _ := domain.CreateFromTemplate(tmpl, t0, 24*time.Hour)
	if err := repo.AddChallenge(ctx, c); err != nil {
		t.Fatalf("AddChallenge: %v", err)
	}
	active, _ := repo.GetActiveChallenges(ctx, domain.ChallengeDaily)
	if len(active) != 1 || active[0].TemplateID != tmpl.ID || *active[0].GoalType != domain.GoalGameCount {
		t.Fatalf("active = %+v", active)
	}

	c.Deactivate()
	if err := repo.UpdateChallenge(ctx, c); err != nil {
		t.Fatalf("UpdateChallenge: %v", err)
	}
	active, _ = repo.GetActiveChallenges(ctx, domain.ChallengeDaily)
	if len(active) != 0 {
		t.Errorf("active after deactivate = %d", len(active))
	}
}

func TestChallenges_TryAddOncePerTemplate(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()

	goal := domain.GoalGameCount
	tmpl, _ := domain.NewChallengeTemplate("Play 3", "Play 3 games", domain.ChallengeDaily, 3, 30, &goal)
	if err := repo.AddChallengeTemplate(ctx, tmpl); err != nil {
		t.Fatalf("AddChallengeTemplate: %v", err)
	}

	const runners = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := t0.Add(time.Duration(i) * time.Second)
			c, _ := domain.CreateFromTemplate(tmpl, now, 24*time.Hour)
			ok, err := repo.TryAddChallenge(ctx, c, now)
			if err != nil {
				t.Errorf("TryAddChallenge: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
	active, _ := repo.GetActiveChallenges(ctx, domain.ChallengeDaily)
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}

	// Once the live one expires the template can be instantiated again.
	next := t0.Add(25 * time.Hour)
	c, _ := domain.CreateFromTemplate(tmpl, next, 24*time.Hour)
	ok, err := repo.TryAddChallenge(ctx, c, next)
	if err != nil || !ok {
		t.Errorf("TryAddChallenge after expiry = %v, %v; want true", ok, err)
	}
}

func TestUserChallenge_CompletedAtPreserved(t *testing.T) {
	db := newTestDB(t)
	repo := db.Gamification()

	uc, _ := domain.NewUserChallenge("u", "c")
	_, _ = uc.UpdateProgress(5, 5, t0)
	if err := repo.SaveUserChallenge(ctx, uc); err != nil {
		t.Fatalf("SaveUserChallenge: %v", err)
	}

	later := t0.Add(time.Hour)
	uc.CompletedAt = &later
	uc.CurrentProgress = 8
	_ = repo.SaveUserChallenge(ctx, uc)

	got, _ := repo.GetUserChallenge(ctx, "u", "c")
	if got == nil || got.CurrentProgress != 8 || !got.IsCompleted {
		t.Fatalf("got %+v", got)
	}
	if !got.CompletedAt.Equal(t0) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, t0)
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestSessions_RoundTripAndProcessed(t *testing.T) {
	db := newTestDB(t)
	repo := db.Sessions()

	s, _ := domain.NewGameSession("u", t0)
	_ = s.End(1200, 14, t0.Add(5*time.Minute))
	if err := repo.Add(ctx, s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := repo.GetByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.Score != 1200 || !got.IsEnded() || got.Duration() != 5*time.Minute {
		t.Errorf("session = %+v", got)
	}

	ok, _ := repo.MarkProcessed(ctx, s.ID, t0)
	again, _ := repo.MarkProcessed(ctx, s.ID, t0)
	if !ok || again {
		t.Errorf("MarkProcessed = %v then %v, want true then false", ok, again)
	}
	if err := repo.ReleaseProcessed(ctx, s.ID); err != nil {
		t.Fatalf("ReleaseProcessed: %v", err)
	}
	if ok, _ := repo.MarkProcessed(ctx, s.ID, t0); !ok {
		t.Error("MarkProcessed after release = false, want true")
	}
}

// ─── Achievements & Goals ───────────────────────────────────────────────────

func TestAchievements_UnlockPreserved(t *testing.T) {
	db := newTestDB(t)
	repo := db.Achievements()

	a, _ := domain.NewAchievement("first_game", "First Game", "", domain.ConditionGamesPlayed, 1, 10)
	if err := repo.AddAchievement(ctx, a); err != nil {
		t.Fatalf("AddAchievement: %v", err)
	}
	list, _ := repo.ListAchievements(ctx)
	if len(list) != 1 || list[0].Condition != domain.ConditionGamesPlayed {
		t.Fatalf("catalog = %+v", list)
	}

	ua, _ := domain.NewUserAchievement("u", a.ID)
	ua.UpdateProgress(100, t0)
	_ = repo.SaveUserAchievement(ctx, ua)

	got, _ := repo.GetUserAchievements(ctx, "u")
	if len(got) != 1 || got[0].UnlockedAt == nil || !got[0].UnlockedAt.Equal(t0) {
		t.Errorf("user achievements = %+v", got)
	}
}

func TestGoals_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := db.Goals()

	deadline := t0.Add(72 * time.Hour)
	g, _ := domain.NewPersonalGoal("u", "Score big", domain.MetricScore, 1000, &deadline, t0)
	if err := repo.AddGoal(ctx, g); err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	_, _ = g.UpdateProgress(1000, t0.Add(time.Hour))
	if err := repo.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}

	goals, _ := repo.GetGoals(ctx, "u")
	if len(goals) != 1 {
		t.Fatalf("goals = %d", len(goals))
	}
	if goals[0].Progress != 100 || goals[0].CompletedAt == nil || goals[0].Deadline == nil {
		t.Errorf("goal = %+v", goals[0])
	}
}

// ─── Cosmetics ──────────────────────────────────────────────────────────────

func TestCosmetics_GrantAndEquip(t *testing.T) {
	db := newTestDB(t)
	repo := db.Cosmetics()

	neon, _ := domain.NewCosmetic("skin_neon", "Neon Blocks", domain.KindBlockSkin)
	wood, _ := domain.NewCosmetic("skin_wood", "Wood Blocks", domain.KindBlockSkin)
	_ = repo.AddCosmetic(ctx, neon)
	_ = repo.AddCosmetic(ctx, wood)

	ok, err := repo.GrantCosmetic(ctx, "u", neon.ID, "season_pass", t0)
	if err != nil || !ok {
		t.Fatalf("GrantCosmetic = %v, %v", ok, err)
	}
	ok, _ = repo.GrantCosmetic(ctx, "u", neon.ID, "season_pass", t0)
	if ok {
		t.Error("second grant should report already owned")
	}
	_, _ = repo.GrantCosmetic(ctx, "u", wood.ID, "shop", t0)

	if err := repo.Equip(ctx, "u", neon.ID, neon.Kind); err != nil {
		t.Fatalf("Equip neon: %v", err)
	}
	if err := repo.Equip(ctx, "u", wood.ID, wood.Kind); err != nil {
		t.Fatalf("Equip wood: %v", err)
	}

	inv, _ := repo.ListUserCosmetics(ctx, "u")
	equipped := 0
	for _, c := range inv {
		if c.Equipped {
			equipped++
			if c.ID != wood.ID {
				t.Errorf("equipped %s, want %s", c.ID, wood.ID)
			}
		}
	}
	if equipped != 1 {
		t.Errorf("equipped count = %d, want 1", equipped)
	}

	if err := repo.Equip(ctx, "other", neon.ID, neon.Kind); err != domain.ErrCosmeticNotOwned {
		t.Errorf("expected ErrCosmeticNotOwned, got %v", err)
	}
}
