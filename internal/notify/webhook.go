// Package notify delivers fire-and-forget chat notifications to a Slack or
// Discord style webhook. Delivery failures are logged and swallowed; the
// trading loop never blocks on chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gridline/internal/httpx"
)

// Level is the severity attached to a notification.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

func (l Level) prefix() string {
	switch l {
	case Warn:
		return "[WARN] "
	case Error:
		return "[ERROR] "
	default:
		return ""
	}
}

type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httpx.RetryConfig
	log        zerolog.Logger
}

func NewSender(webhookURL, botName string, log zerolog.Logger) *Sender {
	if botName == "" {
		botName = "GridlineBot"
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "notify").Logger(),
		retry: httpx.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

// Notify posts a message to the configured webhook. Always logs locally;
// the webhook post is best-effort.
func (s *Sender) Notify(msg string, level Level) {
	formatted := fmt.Sprintf("%s[%s] %s", level.prefix(), s.botName, msg)

	switch level {
	case Error:
		s.log.Error().Msg(msg)
	case Warn:
		s.log.Warn().Msg(msg)
	default:
		s.log.Info().Msg(msg)
	}

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		s.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httpx.Do(ctx, s.httpClient, s.retry, s.log, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("webhook delivery failed after retries")
		return
	}
	resp.Body.Close()
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
