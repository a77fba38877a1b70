package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

func TestMailgun_Deliver(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/mg.example.com/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "api" || pass != "key-test" {
			t.Errorf("BasicAuth = %q/%q/%v, want api/key-test", user, pass, ok)
		}

		if got := r.FormValue("to"); got != "asha@example.com" {
			t.Errorf("to = %q", got)
		}
		if got := r.FormValue("from"); got != "PriceDrop <alerts@mg.example.com>" {
			t.Errorf("from = %q", got)
		}
		if got := r.FormValue("subject"); !strings.Contains(got, "₹999.00") {
			t.Errorf("subject %q does not mention the price", got)
		}
		for _, field := range []string{"text", "html"} {
			body := r.FormValue(field)
			if !strings.Contains(body, "Noise Cancelling Headphones") || !strings.Contains(body, "https://amazon.in/dp/B0ABC") {
				t.Errorf("%s body missing title or URL: %q", field, body)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"<20260301.1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	defer server.Close()

	c := NewMailgun("mg.example.com", "key-test", "", server.URL+"/v3", 5*time.Second)
	user := models.User{UserID: "u1", Email: "asha@example.com", Name: "Asha"}

	if err := c.Deliver(context.Background(), user, testAlert()); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestMailgun_Send_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid private key"}`))
	}))
	defer server.Close()

	c := NewMailgun("mg.example.com", "bad-key", "alerts@mg.example.com", server.URL+"/v3", 5*time.Second)
	if _, err := c.Send(context.Background(), "s", "t", "<p>h</p>", "asha@example.com"); err == nil {
		t.Fatal("Send() should fail on a 401 response")
	}
}

func TestMailgun_Accepts(t *testing.T) {
	c := NewMailgun("mg.example.com", "key", "", "", time.Second)
	if c.Accepts(models.User{UserID: "u1"}) {
		t.Error("a user without an email should not be accepted")
	}
	if !c.Accepts(models.User{Email: "a@example.com"}) {
		t.Error("a user with an email should be accepted")
	}
}

func TestAlertText(t *testing.T) {
	user := models.User{UserName: "asha"}
	text := alertText(user, testAlert())
	for _, want := range []string{"Hi asha", "Noise Cancelling Headphones", "₹999.00", "₹1,000.00", "https://amazon.in/dp/B0ABC", "01 Mar 2026"} {
		if !strings.Contains(text, want) {
			t.Errorf("alertText() missing %q:\n%s", want, text)
		}
	}
}

func TestAlertHTML_EscapesTitle(t *testing.T) {
	alert := testAlert()
	alert.Title = `<script>alert(1)</script>`
	html, err := alertHTML(models.User{}, alert)
	if err != nil {
		t.Fatalf("alertHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("title was not escaped: %s", html)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 5); got != "héll…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}
