package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/app/engagement"
	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/metrics"
	"github.com/blockrush/blockrush/internal/logger"
)

// Notification policy.
const (
	NotificationCooldownHours  = 24
	NotificationWindowMinHours = 2
	NotificationWindowMaxHours = 4
)

// NotificationResult reports one notification run.
type NotificationResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"` // claim held by another run or inside the cooldown
}

// StreakNotificationJob emails users whose streak resets in 2 to 4 hours.
// Each user gets at most one email per cooldown window: the slot is claimed
// atomically before sending and is kept even when the send fails.
type StreakNotificationJob struct {
	users domain.UserRepository
	email domain.EmailService
	log   *logger.Logger
}

// NewStreakNotificationJob creates the streak-expiry notification job.
func NewStreakNotificationJob(users domain.UserRepository, email domain.EmailService, log *logger.Logger) *StreakNotificationJob {
	return &StreakNotificationJob{users: users, email: email, log: log.With("job", NameStreakNotify)}
}

// Name implements Job.
func (j *StreakNotificationJob) Name() string { return NameStreakNotify }

// Run implements Job.
func (j *StreakNotificationJob) Run(ctx context.Context) error {
	return j.ExecuteNotification(ctx)
}

// ExecuteNotification notifies as of the current time.
func (j *StreakNotificationJob) ExecuteNotification(ctx context.Context) error {
	_, err := j.ExecuteNotificationAt(ctx, time.Now())
	return err
}

// ExecuteNotificationAt notifies as of now.
func (j *StreakNotificationJob) ExecuteNotificationAt(ctx context.Context, now time.Time) (NotificationResult, error) {
	var result NotificationResult

	users, err := j.users.GetUsersWithActiveStreaks(ctx)
	if err != nil {
		return result, fmt.Errorf("get users with streaks: %w", err)
	}

	for _, u := range users {
		hours := engagement.StreakResetTime(u, now).Sub(now).Hours()
		if !inNotificationWindow(hours) || !u.HasEmail() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Candidates++

		claimed, err := j.users.TryClaimStreakNotification(ctx, u.ID, NotificationCooldownHours*time.Hour, now)
		if err != nil {
			metrics.Notifications.WithLabelValues("claim_error").Inc()
			j.log.Error("claim streak notification", "user_id", u.ID, "error", err)
			result.Failed++
			continue
		}
		if !claimed {
			metrics.Notifications.WithLabelValues("claim_lost").Inc()
			result.Skipped++
			continue
		}

		ok, err := j.email.SendStreakExpiryNotification(ctx, u.Email, u.DisplayName, u.CurrentStreak, hours)
		if err != nil || !ok {
			// The claim stays: a lost email beats a duplicate one.
			metrics.Notifications.WithLabelValues("send_failed").Inc()
			j.log.Warn("streak notification not sent", "user_id", u.ID, "error", err)
			result.Failed++
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		result.Sent++
	}

	if result.Candidates > 0 {
		j.log.Info("streak notifications",
			"candidates", result.Candidates,
			"sent", result.Sent,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

func inNotificationWindow(hours float64) bool {
	return hours >= NotificationWindowMinHours && hours <= NotificationWindowMaxHours
}
