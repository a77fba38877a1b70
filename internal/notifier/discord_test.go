package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

func testAlert() models.Alert {
	return models.Alert{
		ProductID:   "abc",
		Title:       "Noise Cancelling Headphones",
		URL:         "https://amazon.in/dp/B0ABC",
		Price:       "₹999.00",
		TargetPrice: "₹1,000.00",
		Amount:      999,
		CapturedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestDiscord() *DiscordClient {
	c := NewDiscord(5*time.Second, 1)
	// Override rate limiter and backoff for tests to run fast
	c.rateLimiter = rate.NewLimiter(rate.Inf, 1)
	c.retryBase = time.Millisecond
	return c
}

func TestFormatAlertToEmbed(t *testing.T) {
	alert := testAlert()
	embed := formatAlertToEmbed(alert)

	if embed.Title != alert.Title {
		t.Errorf("Title = %q, want %q", embed.Title, alert.Title)
	}
	if embed.URL != alert.URL {
		t.Errorf("URL = %q, want %q", embed.URL, alert.URL)
	}
	if embed.Timestamp != "2026-03-01T10:00:00Z" {
		t.Errorf("Timestamp = %q", embed.Timestamp)
	}
	if len(embed.Fields) != 2 || embed.Fields[0].Value != "₹999.00" || embed.Fields[1].Value != "₹1,000.00" {
		t.Errorf("Fields = %+v, want price and target", embed.Fields)
	}

	alert.Title = ""
	if got := formatAlertToEmbed(alert).Title; got != alert.URL {
		t.Errorf("untitled alert Title = %q, want the URL", got)
	}
}

func TestDiscord_Send(t *testing.T) {
	// Mock Discord Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("Expected wait=true query param")
		}

		var payload discordWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if len(payload.Embeds) != 1 {
			t.Errorf("Expected 1 embed, got %d", len(payload.Embeds))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "12345", "channel_id": "67890"}`))
	}))
	defer server.Close()

	id, err := newTestDiscord().Send(context.Background(), server.URL, testAlert())
	if err != nil {
		t.Fatalf("Send() returned error: %v", err)
	}
	if id != "12345" {
		t.Errorf("Expected ID 12345, got %s", id)
	}
}

func TestDiscord_Send_RetriesOn5xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message": "server error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "retry-success", "channel_id": "67890"}`))
	}))
	defer server.Close()

	id, err := newTestDiscord().Send(context.Background(), server.URL, testAlert())
	if err != nil {
		t.Fatalf("Send() should have succeeded after retries, got error: %v", err)
	}
	if id != "retry-success" {
		t.Errorf("Expected ID 'retry-success', got %s", id)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts (2 failures + 1 success), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDiscord_Send_RetriesOn429(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message": "rate limited"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "429-success", "channel_id": "67890"}`))
	}))
	defer server.Close()

	id, err := newTestDiscord().Send(context.Background(), server.URL, testAlert())
	if err != nil {
		t.Fatalf("Send() should have succeeded after 429 retry, got error: %v", err)
	}
	if id != "429-success" {
		t.Errorf("Expected ID '429-success', got %s", id)
	}
}

func TestDiscord_Send_NoRetryOn4xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "bad request"}`))
	}))
	defer server.Close()

	_, err := newTestDiscord().Send(context.Background(), server.URL, testAlert())
	if err == nil {
		t.Fatal("Send() should have returned error for 400 response")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt (no retry for 400), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDiscord_Send_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := newTestDiscord().Send(context.Background(), server.URL, testAlert()); err == nil {
		t.Fatal("Send() should fail when every attempt returns 502")
	}
	if got := atomic.LoadInt32(&attempts); got != discordMaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", discordMaxRetries+1, got)
	}
}

func TestRetryBackoff(t *testing.T) {
	c := NewDiscord(time.Second, 1)
	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		attempt    int
		want       time.Duration
	}{
		{"429 with Retry-After", 429, "2", 0, 2 * time.Second},
		{"429 without Retry-After", 429, "", 0, 500 * time.Millisecond},
		{"500 error", 500, "", 0, 500 * time.Millisecond},
		{"503 error second attempt", 503, "", 1, time.Second},
		{"400 error", 400, "", 0, 0},
		{"404 error", 404, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Header:     http.Header{},
			}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}

			if got := c.retryBackoff(resp, tt.attempt); got != tt.want {
				t.Errorf("retryBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscord_Accepts(t *testing.T) {
	c := NewDiscord(time.Second, 1)
	if c.Accepts(models.User{Email: "a@example.com"}) {
		t.Error("a user without a webhook should not be accepted")
	}
	if !c.Accepts(models.User{DiscordWebhookURL: "https://discord.com/api/webhooks/1/x"}) {
		t.Error("a user with a webhook should be accepted")
	}
}

func TestDiscord_Send_EmptyWebhookURL(t *testing.T) {
	id, err := newTestDiscord().Send(context.Background(), "", testAlert())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "" {
		t.Errorf("Send() with empty webhook should return empty ID, got %q", id)
	}
}
