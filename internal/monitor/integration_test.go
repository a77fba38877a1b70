//go:build integration

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
	"github.com/pricedrop/pricedrop-monitor/internal/notifier"
	"github.com/pricedrop/pricedrop-monitor/internal/scraper"
)

// Integration test that wires a real scraper and a real Discord channel to
// mock HTTP servers, with a mock store, to test the full pipeline.

func TestIntegration_FullPipeline(t *testing.T) {
	kettleHTML := `<!DOCTYPE html>
<html><head>
	<meta property="og:title" content="Electric Kettle 1.5L">
	<meta property="product:price:amount" content="Rs.999.00">
</head><body><h1>Kettle</h1></body></html>`

	chairHTML := `<!DOCTYPE html>
<html><head>
	<script type="application/ld+json">
	{"@context":"https://schema.org","@type":"Product","name":"Office Chair",
	 "offers":{"@type":"Offer","price":"5000.00","priceCurrency":"INR"}}
	</script>
</head><body></body></html>`

	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/kettle":
			fmt.Fprint(w, kettleHTML)
		case "/chair":
			fmt.Fprint(w, chairHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer shop.Close()

	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("webhook received invalid JSON: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, body)
		n := len(payloads)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"msg-%d","channel_id":"c1"}`, n)
	}))
	defer webhook.Close()

	cfg := &config.Config{
		BatchSize:         2,
		ScrapeTimeout:     5 * time.Second,
		ScrapeRenderer:    config.RendererHTTP,
		ScrapeRatePerHost: 1000,
		UserAgent:         "pricedrop-integration",
	}
	fetcher, err := scraper.NewHTTPFetcher(cfg.ScrapeTimeout, cfg.UserAgent)
	if err != nil {
		t.Fatal(err)
	}
	scr := scraper.New(cfg, fetcher, scraper.LoadConfig(""))
	sender := notifier.NewDispatcher(notifier.NewDiscord(5*time.Second, 1000))

	kettle := product(shop.URL+"/kettle", "1000", "u1", "u2")
	chair := product(shop.URL+"/chair", "4000", "u1")
	gone := product(shop.URL+"/gone", "100", "u1")
	store := newMockStore(kettle, chair, gone)
	store.users["u1"] = models.User{UserID: "u1", Name: "Asha", DiscordWebhookURL: webhook.URL}
	store.users["u2"] = models.User{UserID: "u2", DiscordWebhookURL: webhook.URL}

	m := New(store, sender, scr, cfg)
	if err := m.CheckAll(context.Background()); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	// Kettle: price dropped below target, one row, two alerts.
	kh := store.historyFor(kettle.ProductID)
	if len(kh) != 1 {
		t.Fatalf("kettle history rows = %d, want 1", len(kh))
	}
	if kh[0].ProductName != "Electric Kettle 1.5L" || kh[0].ProductPrice != "₹999.00" || kh[0].Amount != 999 {
		t.Errorf("kettle history = %+v", kh[0])
	}

	// Chair: price read from JSON-LD, above target.
	ch := store.historyFor(chair.ProductID)
	if len(ch) != 1 || ch[0].Amount != 5000 || ch[0].ProductName != "Office Chair" {
		t.Errorf("chair history = %+v", ch)
	}

	// Gone: 404 fails the item without history.
	if n := len(store.historyFor(gone.ProductID)); n != 0 {
		t.Errorf("gone history rows = %d, want 0", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("webhook received %d alerts, want 2", len(payloads))
	}
	embeds, ok := payloads[0]["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("payload embeds = %v", payloads[0]["embeds"])
	}
	embed := embeds[0].(map[string]any)
	if embed["url"] != kettle.ProductURL {
		t.Errorf("embed url = %v, want %s", embed["url"], kettle.ProductURL)
	}

	if len(store.states) != 1 {
		t.Fatalf("saved %d run states, want 1", len(store.states))
	}
	if s := store.states[0]; s.Products != 3 || s.Succeeded != 2 || s.Failed != 1 {
		t.Errorf("run state = %+v", s)
	}
}
