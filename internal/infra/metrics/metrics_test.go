package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestJobMetrics(t *testing.T) {
	JobRuns.WithLabelValues("challenge-daily", "ok").Inc()
	JobDuration.WithLabelValues("challenge-daily").Observe(0.2)
	ChallengesCreated.WithLabelValues("Daily").Add(2)
	SeasonsArchived.Inc()

	names := gatheredNames(t)
	for _, want := range []string{
		"blockrush_job_runs_total",
		"blockrush_job_duration_seconds",
		"blockrush_challenges_created_total",
		"blockrush_season_archives_total",
	} {
		if !names[want] {
			t.Errorf("%s not found in gathered metrics", want)
		}
	}
}

func TestEngagementMetrics(t *testing.T) {
	StreakUpdates.WithLabelValues("frozen").Inc()
	XPGranted.WithLabelValues("challenge").Add(20)
	TierUps.Inc()
	RewardClaims.WithLabelValues("claimed").Inc()
	Notifications.WithLabelValues("sent").Inc()
	GameEvents.WithLabelValues("processed").Inc()
	HealthStatus.WithLabelValues("sqlite").Set(1)

	names := gatheredNames(t)
	for _, want := range []string{
		"blockrush_streak_updates_total",
		"blockrush_xp_granted_total",
		"blockrush_tier_ups_total",
		"blockrush_reward_claims_total",
		"blockrush_notifications_total",
		"blockrush_game_events_total",
		"blockrush_health_check_status",
	} {
		if !names[want] {
			t.Errorf("%s not found in gathered metrics", want)
		}
	}
}
