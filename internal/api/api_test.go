package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blockrush/blockrush/internal/app/cosmetic"
	"github.com/blockrush/blockrush/internal/app/engagement"
	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/health"
	"github.com/blockrush/blockrush/internal/infra/sqlite"
	"github.com/blockrush/blockrush/internal/logger"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db  *sqlite.DB
	srv *Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.Nop()
	cos := cosmetic.NewService(db.Cosmetics(), log)
	pass := engagement.NewSeasonPassService(db.Users(), db.Gamification(), cos, log)
	challenges := engagement.NewChallengeTracker(db.Gamification(), log)
	achievements := engagement.NewAchievementService(db.Achievements(), log)
	goals := engagement.NewGoalService(db.Goals(), log)

	srv := NewServer(Services{
		Users:        engagement.NewUserService(db.Users(), log),
		Streaks:      engagement.NewStreakService(db.Users(), log),
		SeasonPass:   pass,
		GameEnd:      engagement.NewGameEndService(db.Users(), db.Sessions(), pass, challenges, achievements, goals, 0, log),
		Challenges:   challenges,
		Achievements: achievements,
		Goals:        goals,
		Cosmetics:    cos,
	}, log)
	srv.now = func() time.Time { return fixedNow }
	srv.EnableMetrics()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, srv: srv, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) createUser(t *testing.T, name string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/users",
		`{"external_id":"ext-`+name+`","email":"`+name+`@example.com","display_name":"`+name+`","timezone":"Europe/Berlin"}`)
	if code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (%v)", code, body)
	}
	return body["id"].(string)
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

// ─── Basics ─────────────────────────────────────────────────────────────────

func TestHealth_NoChecker(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("expected ok, got %d %v", code, body)
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t)
	c := health.NewChecker(time.Minute, logger.Nop(), health.Check{
		Name:    "broken",
		CheckFn: func(context.Context) error { return errors.New("down") },
	})
	c.RunOnce(context.Background())
	env.srv.SetHealth(c)

	code, body := env.do(t, http.MethodGet, "/health", "")
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("expected 503 degraded, got %d %v", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/users", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "ana")

	code, body := env.do(t, http.MethodGet, "/api/users/"+id, "")
	if code != http.StatusOK || body["display_name"] != "ana" {
		t.Errorf("expected user ana, got %d %v", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/api/users",
		`{"external_id":"x2","email":"other@example.com","display_name":"ana"}`)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate name, got %d %v", code, body)
	}

	code, _ = env.do(t, http.MethodPost, "/api/users",
		`{"external_id":"x3","email":"b@example.com","display_name":"bob","timezone":"Mars/Olympus"}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad timezone, got %d", code)
	}

	code, _ = env.do(t, http.MethodPost, "/api/users", `{"unknown":1}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", code)
	}
}

func TestUserNotFound(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/api/users/missing/streak", "")
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	if e, _ := body["error"].(map[string]any); e["type"] != "not_found" {
		t.Errorf("expected not_found type, got %v", body)
	}
}

func TestSetTimezone(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "tz")

	code, body := env.do(t, http.MethodPut, "/api/users/"+id+"/timezone", `{"timezone":"Asia/Tokyo"}`)
	if code != http.StatusOK || body["timezone"] != "Asia/Tokyo" {
		t.Errorf("expected Asia/Tokyo, got %d %v", code, body)
	}
	code, _ = env.do(t, http.MethodPut, "/api/users/"+id+"/timezone", `{"timezone":"Local"}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

// ─── Streak ─────────────────────────────────────────────────────────────────

func TestStreakEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "streaker")

	code, body := env.do(t, http.MethodGet, "/api/users/"+id+"/streak", "")
	if code != http.StatusOK || body["current_streak"] != float64(0) {
		t.Errorf("expected zero streak, got %d %v", code, body)
	}

	code, _ = env.do(t, http.MethodPost, "/api/users/"+id+"/streak/freeze", "")
	if code != http.StatusConflict {
		t.Errorf("expected 409 without tokens, got %d", code)
	}

	u, _ := env.db.Users().GetByID(context.Background(), id)
	_ = u.AddFreezeTokens(2)
	_ = env.db.Users().Update(context.Background(), u)

	code, body = env.do(t, http.MethodPost, "/api/users/"+id+"/streak/freeze", "")
	if code != http.StatusOK || body["freeze_tokens"] != float64(1) {
		t.Errorf("expected 1 token left, got %d %v", code, body)
	}
}

// ─── Season Pass ────────────────────────────────────────────────────────────

func TestSeasonPassClaimFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createUser(t, "claimer")

	season, _ := domain.NewSeason("Summer", 1, "sun", fixedNow.AddDate(0, -1, 0), fixedNow.AddDate(0, 1, 0))
	season.Activate()
	if err := env.db.Gamification().AddSeason(ctx, season); err != nil {
		t.Fatalf("AddSeason: %v", err)
	}
	reward, _ := domain.NewSeasonReward(season.ID, 1, "Freeze", domain.RewardStreakFreeze, "1")
	if err := env.db.Gamification().AddSeasonReward(ctx, reward); err != nil {
		t.Fatalf("AddSeasonReward: %v", err)
	}
	path := "/api/users/" + id + "/season-pass/rewards/" + reward.ID + "/claim"

	code, body := env.do(t, http.MethodPost, path, "")
	if code != http.StatusConflict || !strings.HasPrefix(errorString(body), "Insufficient tier") {
		t.Errorf("expected insufficient tier 409, got %d %v", code, body)
	}

	u, _ := env.db.Users().GetByID(ctx, id)
	u.CurrentSeasonTier = 1
	u.SeasonPassXP = domain.XPForTier(1)
	_ = env.db.Users().Update(ctx, u)

	code, body = env.do(t, http.MethodPost, path, "")
	if code != http.StatusOK || body["success"] != true {
		t.Errorf("expected claim success, got %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, path, "")
	if code != http.StatusConflict || errorString(body) != "Reward has already been claimed" {
		t.Errorf("expected already claimed, got %d %v", code, body)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/"+id+"/season-pass/rewards/nope/claim", "")
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown reward, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/api/users/"+id+"/season-pass", "")
	if code != http.StatusOK || body["tier"] != float64(1) {
		t.Errorf("expected tier 1 status, got %d %v", code, body)
	}
	rewards, _ := body["rewards"].([]any)
	if len(rewards) != 1 || rewards[0].(map[string]any)["claimed"] != true {
		t.Errorf("expected claimed reward in status, got %v", body["rewards"])
	}
}

// errorString reads ClaimResult.Error.
func errorString(body map[string]any) string {
	s, _ := body["error"].(string)
	return s
}

// ─── Games ──────────────────────────────────────────────────────────────────

func TestGameComplete(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "gamer")

	sess, _ := domain.NewGameSession(id, time.Now().Add(-10*time.Minute))
	_ = sess.End(500, 8, time.Now())
	if err := env.db.Sessions().Add(context.Background(), sess); err != nil {
		t.Fatalf("add session: %v", err)
	}
	path := "/api/users/" + id + "/games/" + sess.ID + "/complete"

	code, body := env.do(t, http.MethodPost, path, "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if body["xp_gained"] != float64(engagement.DefaultGameXP) {
		t.Errorf("expected %d xp, got %v", engagement.DefaultGameXP, body["xp_gained"])
	}

	code, _ = env.do(t, http.MethodPost, path, "")
	if code != http.StatusConflict {
		t.Errorf("expected 409 on replay, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/"+id+"/games/missing/complete", "")
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for missing session, got %d", code)
	}
}

// ─── Goals & Cosmetics ──────────────────────────────────────────────────────

func TestGoals(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "goalie")

	code, body := env.do(t, http.MethodPost, "/api/users/"+id+"/goals", `{"title":"Clear 100 lines","metric":"Lines","target":100}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", code, body)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/"+id+"/goals", `{"title":"x","metric":"Coins","target":1}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad metric, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/api/users/"+id+"/goals", "")
	goals, _ := body["goals"].([]any)
	if code != http.StatusOK || len(goals) != 1 {
		t.Errorf("expected one goal, got %d %v", code, body)
	}
}

func TestCosmetics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createUser(t, "stylist")

	c, _ := domain.NewCosmetic("skin-neon", "Neon", domain.KindBlockSkin)
	_ = env.db.Cosmetics().AddCosmetic(ctx, c)

	code, body := env.do(t, http.MethodPost, "/api/users/"+id+"/cosmetics/skin-neon/equip", "")
	if code != http.StatusConflict {
		t.Errorf("expected 409 for unowned cosmetic, got %d %v", code, body)
	}
	if msg := errorMessage(body); !strings.Contains(msg, "not owned") {
		t.Errorf("expected not owned message, got %q", msg)
	}

	if _, err := env.srv.svc.Cosmetics.GrantCosmetic(ctx, id, "skin-neon", "test"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/"+id+"/cosmetics/skin-neon/equip", "")
	if code != http.StatusOK {
		t.Errorf("expected 200 equip, got %d", code)
	}
	code, body = env.do(t, http.MethodGet, "/api/users/"+id+"/cosmetics", "")
	items, _ := body["cosmetics"].([]any)
	if code != http.StatusOK || len(items) != 1 {
		t.Errorf("expected one cosmetic, got %d %v", code, body)
	}
}

// ─── Admin ──────────────────────────────────────────────────────────────────

type fakeRunner struct{ ran []string }

func (f *fakeRunner) RunNow(_ context.Context, name string) error {
	if name != "challenge-daily" {
		return domain.ErrUnknownJob
	}
	f.ran = append(f.ran, name)
	return nil
}

func TestRunJob(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/admin/jobs/challenge-daily/run", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without runner, got %d", code)
	}

	runner := &fakeRunner{}
	env.srv.SetJobRunner(runner)
	code, _ = env.do(t, http.MethodPost, "/api/admin/jobs/challenge-daily/run", "")
	if code != http.StatusOK || len(runner.ran) != 1 {
		t.Errorf("expected job run, got %d %v", code, runner.ran)
	}
	code, _ = env.do(t, http.MethodPost, "/api/admin/jobs/nope/run", "")
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", code)
	}
}
