package email

import (
	"context"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// LogMailer logs messages instead of sending them. Used when no SendGrid
// key is configured.
type LogMailer struct {
	log *logger.Logger
}

var _ domain.EmailService = (*LogMailer)(nil)

// NewLogMailer creates a log-only mailer.
func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log.With("client", "log_mailer")}
}

// SendStreakExpiryNotification implements domain.EmailService.
func (m *LogMailer) SendStreakExpiryNotification(_ context.Context, to, name string, streakLength int, hoursRemaining float64) (bool, error) {
	subject, _ := streakExpiryMessage(name, streakLength, hoursRemaining)
	m.log.Info("email (not sent)", "to", to, "subject", subject)
	return true, nil
}
