package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blockrush/blockrush/internal/app/engagement"
	"github.com/blockrush/blockrush/internal/domain"
)

// loadUser resolves {userID}. On failure the response is already written.
func (s *Server) loadUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	u, err := s.svc.Users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return u, true
}

// ─── Users ──────────────────────────────────────────────────────────────────

type createUserRequest struct {
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u, err := s.svc.Users.Create(r.Context(), req.ExternalID, req.Email, req.DisplayName, req.Timezone, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleSetTimezone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timezone string `json:"timezone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u, err := s.svc.Users.SetTimezone(r.Context(), chi.URLParam(r, "userID"), req.Timezone)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Streaks.Status(u, s.now()))
}

func (s *Server) handleStreakFreeze(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	used, err := s.svc.Streaks.UseStreakFreeze(r.Context(), u)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !used {
		writeError(w, http.StatusConflict, "no streak freeze tokens left")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Streaks.Status(u, s.now()))
}

// ─── Season Pass ────────────────────────────────────────────────────────────

func (s *Server) handleSeasonPass(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	status, err := s.svc.SeasonPass.Status(r.Context(), u, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	res, err := s.svc.SeasonPass.ClaimRewardAt(r.Context(), u, chi.URLParam(r, "rewardID"), s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, claimStatus(res), res)
}

func claimStatus(res engagement.ClaimResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.Error == "Reward not found":
		return http.StatusNotFound
	case strings.HasPrefix(res.Error, "Failed to grant"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// ─── Games ──────────────────────────────────────────────────────────────────

func (s *Server) handleGameComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.GameEnd.ProcessGameEnd(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Challenges, Achievements, Goals ────────────────────────────────────────

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Challenges.ListForUser(r.Context(), u.ID, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Achievements.List(r.Context(), u.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": list})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	goals, err := s.svc.Goals.List(r.Context(), u.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if goals == nil {
		goals = []*domain.PersonalGoal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

type createGoalRequest struct {
	Title    string     `json:"title"`
	Metric   string     `json:"metric"`
	Target   int        `json:"target"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var req createGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	metric, err := domain.ParseGoalMetric(req.Metric)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	g, err := s.svc.Goals.Create(r.Context(), u.ID, req.Title, metric, req.Target, req.Deadline, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// ─── Cosmetics ──────────────────────────────────────────────────────────────

func (s *Server) handleCosmetics(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	items, err := s.svc.Cosmetics.Inventory(r.Context(), u.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.OwnedCosmetic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cosmetics": items})
}

func (s *Server) handleEquipCosmetic(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "cosmeticID")
	equipped, err := s.svc.Cosmetics.EquipCosmetic(r.Context(), u.ID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !equipped {
		s.writeServiceError(w, r, fmt.Errorf("%w: %s", domain.ErrCosmeticNotOwned, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipped": id})
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job runner not configured")
		return
	}
	name := chi.URLParam(r, "job")
	start := time.Now()
	if err := s.jobs.RunNow(r.Context(), name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":      name,
		"status":   "ok",
		"duration": time.Since(start).String(),
	})
}
