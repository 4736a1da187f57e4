// Package email delivers transactional mail. SendGrid is used when an API
// key is configured; otherwise LogMailer writes the message to the log.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

const defaultBaseURL = "https://api.sendgrid.com"

// Config configures the SendGrid client.
type Config struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration // first retry delay, doubled per attempt
}

// SendGrid implements domain.EmailService over the v3 mail-send API.
type SendGrid struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

var _ domain.EmailService = (*SendGrid)(nil)

// NewSendGrid validates cfg and fills defaults.
func NewSendGrid(log *logger.Logger, cfg Config) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: missing api key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendgrid: missing from address")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &SendGrid{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("client", "sendgrid"),
	}, nil
}

// ─── Wire Types ─────────────────────────────────────────────────────────────

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPError is a non-2xx response from SendGrid.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

// ─── Mail ───────────────────────────────────────────────────────────────────

// SendStreakExpiryNotification implements domain.EmailService.
func (c *SendGrid) SendStreakExpiryNotification(ctx context.Context, to, name string, streakLength int, hoursRemaining float64) (bool, error) {
	subject, text := streakExpiryMessage(name, streakLength, hoursRemaining)
	req := mailSendRequest{
		Personalizations: []personalization{{To: []address{{Email: to, Name: name}}}},
		From:             address{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          subject,
		Content:          []content{{Type: "text/plain", Value: text}},
		Categories:       []string{"streak-expiry"},
	}
	if err := c.send(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SendGrid) send(ctx context.Context, body mailSendRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	backoff := c.cfg.Backoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		retryAfter, err := c.doOnce(ctx, payload)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= c.cfg.MaxRetries {
			return err
		}

		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.log.Warn("sendgrid retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", wait.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(30*time.Second)))
	}
}

func (c *SendGrid) doOnce(ctx context.Context, payload []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}
	he := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 && er.Errors[0].Message != "" {
		he.Message = er.Errors[0].Message
	}
	return parseRetryAfter(resp.Header.Get("Retry-After")), he
}

// retryable reports whether err is a transport failure, a 429, or a 5xx.
func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, 30*time.Second)
}

func streakExpiryMessage(name string, streakLength int, hoursRemaining float64) (subject, body string) {
	hours := int(math.Round(hoursRemaining))
	subject = fmt.Sprintf("Your %d-day streak ends in %d hours", streakLength, hours)
	body = fmt.Sprintf(
		"Hi %s,\n\nYour %d-day BlockRush streak resets in about %d hours. "+
			"Play one game before midnight to keep it going.\n",
		name, streakLength, hours)
	return subject, body
}
