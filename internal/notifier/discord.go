package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

const (
	colorPriceDrop = 3066993 // #2ECC71

	discordMaxRetries = 3
)

// DiscordClient posts alerts to users' personal Discord webhooks. All
// webhooks share one limiter.
type DiscordClient struct {
	client      *http.Client
	rateLimiter *rate.Limiter
	retryBase   time.Duration
}

func NewDiscord(timeout time.Duration, perSecond float64) *DiscordClient {
	return &DiscordClient{
		client:      &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		retryBase:   500 * time.Millisecond,
	}
}

func (c *DiscordClient) Name() string { return "discord" }

func (c *DiscordClient) Accepts(user models.User) bool { return user.DiscordWebhookURL != "" }

func (c *DiscordClient) Deliver(ctx context.Context, user models.User, alert models.Alert) error {
	_, err := c.Send(ctx, user.DiscordWebhookURL, alert)
	return err
}

// Send posts an alert embed and returns the created message ID.
func (c *DiscordClient) Send(ctx context.Context, webhookURL string, alert models.Alert) (string, error) {
	if webhookURL == "" {
		return "", nil
	}
	embed := formatAlertToEmbed(alert)
	return c.sendAndGetMessageID(ctx, webhookURL, embed)
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatAlertToEmbed(alert models.Alert) discordEmbed {
	var isoTimestamp string
	if !alert.CapturedAt.IsZero() {
		isoTimestamp = alert.CapturedAt.Format(time.RFC3339)
	}

	return discordEmbed{
		Title:       truncate(alertTitle(alert), 256),
		URL:         alert.URL,
		Description: fmt.Sprintf("Price dropped to **%s**", alert.Price),
		Timestamp:   isoTimestamp,
		Color:       colorPriceDrop,
		Fields: []discordEmbedField{
			{Name: "Price", Value: alert.Price, Inline: true},
			{Name: "Target", Value: alert.TargetPrice, Inline: true},
		},
		Footer: discordEmbedFooter{Text: "PriceDrop"},
	}
}

func (c *DiscordClient) sendAndGetMessageID(ctx context.Context, webhookURL string, embed discordEmbed) (string, error) {
	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= discordMaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		backoff := c.retryBackoff(resp, attempt)
		if backoff == 0 || attempt == discordMaxRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not retryable. 429 honours Retry-After.
func (c *DiscordClient) retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return c.retryBase << attempt
	case resp.StatusCode >= 500:
		return c.retryBase << attempt
	default:
		return 0
	}
}
