// Package metrics provides Prometheus metrics for the gamification engine:
// scheduled jobs, streaks, season pass XP and claims, notifications, and
// game-end ingestion.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blockrush"

// ─── Scheduled Jobs ─────────────────────────────────────────────────────────

// JobRuns counts job executions by job name and outcome (ok, error).
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "job_runs_total",
	Help:      "Total scheduled job executions.",
}, []string{"job", "outcome"})

// JobDuration tracks job execution time in seconds.
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "job_duration_seconds",
	Help:      "Scheduled job execution time in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
}, []string{"job"})

// ChallengesCreated counts challenges created by rotation, by type.
var ChallengesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "challenges_created_total",
	Help:      "Challenges created by the rotation jobs.",
}, []string{"type"})

// SeasonsArchived counts users archived at season transitions.
var SeasonsArchived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "season_archives_total",
	Help:      "User season snapshots written at season transitions.",
})

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakUpdates counts streak transitions (extended, frozen, broken, same_day).
var StreakUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_updates_total",
	Help:      "Streak transitions by outcome.",
}, []string{"outcome"})

// ─── Season Pass ────────────────────────────────────────────────────────────

// XPGranted sums season XP granted, by source.
var XPGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_granted_total",
	Help:      "Season pass XP granted by source.",
}, []string{"source"})

// TierUps counts tiers gained across all users.
var TierUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tier_ups_total",
	Help:      "Season pass tiers gained.",
})

// RewardClaims counts claim attempts by outcome.
var RewardClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reward_claims_total",
	Help:      "Season reward claim attempts by outcome.",
}, []string{"outcome"})

// ─── Notifications ──────────────────────────────────────────────────────────

// Notifications counts streak-expiry notification outcomes
// (sent, send_failed, claim_lost, claim_error).
var Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_total",
	Help:      "Streak expiry notification outcomes.",
}, []string{"outcome"})

// ─── Game-End Ingestion ─────────────────────────────────────────────────────

// GameEvents counts processed game-end events by outcome.
var GameEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "game_events_total",
	Help:      "Game-end events by outcome.",
}, []string{"outcome"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus tracks health check results (1 = healthy, 0 = unhealthy).
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check status (1 = healthy, 0 = unhealthy).",
}, []string{"check"})
