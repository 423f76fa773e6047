// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package notifications provides alerting for notable controller events.
//
// Alerts are delivered to Slack via an Incoming Webhook configured through
// SLACK_WEBHOOK_URL or the YAML config. The notifier is rate limited so a
// flapping sensor or storage backend cannot flood the channel, and an empty
// webhook URL disables sending entirely.
//
// The daemon raises alerts for:
//   - an anti-stagnation flush running more than 25% overdue
//   - a recorded thermal disinfection
//   - a sensor invalid for an extended period
//   - storage spooling activation and recovery
//
// Notification failures are logged but never block the control loop. The
// notifier is safe for concurrent use.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/metrics"
)

const (
	webhookTimeout = 10 * time.Second

	// One alert per 30 seconds sustained, bursts of 5. Enough for real
	// incidents, too slow to flood a channel from a flapping backend.
	alertsPerSecond = 1.0 / 30.0
	alertBurst      = 5
)

// SlackNotifier sends alerts to Slack via webhook.
type SlackNotifier struct {
	mu         sync.RWMutex
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
	enabled    bool
}

// slackMessage is a Slack webhook payload.
type slackMessage struct {
	Text        string       `json:"text,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// attachment is a color-coded Slack attachment.
type attachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

// NewSlackNotifier creates a notifier. An empty webhook URL produces a
// disabled notifier whose sends are silent no-ops.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		limiter:    rate.NewLimiter(rate.Limit(alertsPerSecond), alertBurst),
		enabled:    webhookURL != "",
	}
}

// IsEnabled returns whether Slack notifications are enabled.
func (s *SlackNotifier) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// UpdateWebhookURL swaps the webhook destination at runtime. An empty URL
// disables the notifier.
func (s *SlackNotifier) UpdateWebhookURL(webhookURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if webhookURL == s.webhookURL {
		return
	}
	s.webhookURL = webhookURL
	s.enabled = webhookURL != ""
	logger.Info().Bool("enabled", s.enabled).Msg("Slack webhook updated")
}

// SendAlert sends a formatted, color-coded alert. Alerts beyond the rate
// limit are dropped with a warning rather than queued.
func (s *SlackNotifier) SendAlert(ctx context.Context, level, title, message string) error {
	if !s.IsEnabled() {
		logger.Debug().Msg("Slack notifications disabled, skipping alert")
		return nil
	}
	if !s.limiter.Allow() {
		logger.Warn().Str("title", title).Msg("Alert rate limit exceeded, dropping notification")
		return nil
	}

	payload := slackMessage{
		Attachments: []attachment{
			{
				Color:  levelToColor(level),
				Title:  title,
				Text:   message,
				Footer: "hotcirc",
				Ts:     time.Now().Unix(),
			},
		},
	}

	if err := s.sendPayload(ctx, payload); err != nil {
		return err
	}
	metrics.NotificationsTotal.WithLabelValues(level).Inc()
	return nil
}

// SendMessage sends a plain text message, bypassing attachment formatting
// but not the rate limit.
func (s *SlackNotifier) SendMessage(ctx context.Context, message string) error {
	if !s.IsEnabled() {
		return nil
	}
	if !s.limiter.Allow() {
		logger.Warn().Msg("Alert rate limit exceeded, dropping message")
		return nil
	}
	return s.sendPayload(ctx, slackMessage{Text: message})
}

func (s *SlackNotifier) sendPayload(ctx context.Context, payload slackMessage) error {
	s.mu.RLock()
	webhookURL := s.webhookURL
	s.mu.RUnlock()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.NewNotificationError("slack", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.NewNotificationError("slack", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewNotificationError("slack", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.NewNotificationError("slack",
			fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	if len(payload.Attachments) > 0 {
		logger.Debug().Str("title", payload.Attachments[0].Title).Msg("Slack notification sent")
	} else {
		logger.Debug().Str("text", payload.Text).Msg("Slack notification sent")
	}
	return nil
}

// levelToColor maps alert levels to Slack attachment colors.
func levelToColor(level string) string {
	switch level {
	case "danger", "error":
		return "danger" // Red
	case "warning", "warn":
		return "warning" // Yellow
	case "good", "success", "info":
		return "good" // Green
	default:
		return "#808080" // Gray
	}
}
