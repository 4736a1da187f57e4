package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blockrush/blockrush/internal/logger"
)

func newTestClient(t *testing.T, url string, retries int) *SendGrid {
	t.Helper()
	c, err := NewSendGrid(logger.Nop(), Config{
		APIKey:     "SG.test",
		BaseURL:    url,
		FromEmail:  "noreply@blockrush.test",
		FromName:   "BlockRush",
		MaxRetries: retries,
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSendGrid() error: %v", err)
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// Config
// ═══════════════════════════════════════════════════════════════════════════

func TestNewSendGrid_Validation(t *testing.T) {
	if _, err := NewSendGrid(logger.Nop(), Config{FromEmail: "a@b.c"}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := NewSendGrid(logger.Nop(), Config{APIKey: "k"}); err == nil {
		t.Error("expected error for missing from address")
	}
	c, err := NewSendGrid(logger.Nop(), Config{APIKey: "k", FromEmail: "a@b.c"})
	if err != nil {
		t.Fatalf("NewSendGrid() error: %v", err)
	}
	if c.cfg.BaseURL != defaultBaseURL {
		t.Errorf("expected default base url, got %q", c.cfg.BaseURL)
	}
	if c.cfg.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", c.cfg.Timeout)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Sending
// ═══════════════════════════════════════════════════════════════════════════

func TestSendStreakExpiry_Success(t *testing.T) {
	var got mailSendRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	ok, err := c.SendStreakExpiryNotification(context.Background(), "ana@example.com", "Ana", 12, 2.6)
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if auth != "Bearer SG.test" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if path != "/v3/mail/send" {
		t.Errorf("expected /v3/mail/send, got %q", path)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "ana@example.com" {
		t.Errorf("unexpected recipients: %+v", got.Personalizations)
	}
	if got.From.Email != "noreply@blockrush.test" {
		t.Errorf("expected from address, got %q", got.From.Email)
	}
	if got.Subject != "Your 12-day streak ends in 3 hours" {
		t.Errorf("unexpected subject %q", got.Subject)
	}
	if len(got.Content) != 1 || !strings.Contains(got.Content[0].Value, "Hi Ana") {
		t.Errorf("unexpected content: %+v", got.Content)
	}
}

func TestSendStreakExpiry_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	ok, err := c.SendStreakExpiryNotification(context.Background(), "a@b.c", "A", 3, 3)
	if err != nil || !ok {
		t.Fatalf("expected success after retries, got ok=%v err=%v", ok, err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestSendStreakExpiry_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid email"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	ok, err := c.SendStreakExpiryNotification(context.Background(), "bad", "A", 3, 3)
	if ok || err == nil {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %T", err)
	}
	if he.StatusCode != http.StatusBadRequest || he.Message != "invalid email" {
		t.Errorf("unexpected error %+v", he)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSendStreakExpiry_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	if _, err := c.SendStreakExpiryNotification(context.Background(), "a@b.c", "A", 3, 3); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":    0,
		"x":   0,
		"-1":  0,
		"2":   2 * time.Second,
		"120": 30 * time.Second,
	}
	for in, want := range cases {
		if got := parseRetryAfter(in); got != want {
			t.Errorf("parseRetryAfter(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(logger.Nop())
	ok, err := m.SendStreakExpiryNotification(context.Background(), "a@b.c", "A", 5, 2)
	if err != nil || !ok {
		t.Errorf("expected log mailer to succeed, got ok=%v err=%v", ok, err)
	}
}
