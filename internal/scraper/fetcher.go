package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
)

// Fetcher loads a page and returns its parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// NewFetcher builds the page renderer selected by cfg.ScrapeRenderer. The
// returned close function releases browser resources and is never nil.
func NewFetcher(cfg *config.Config) (Fetcher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.ScrapeRenderer {
	case config.RendererChromedp:
		f := NewChromedpFetcher(cfg.ScrapeTimeout, cfg.UserAgent)
		return f, f.Close, nil
	case config.RendererPlaywright:
		f, err := NewPlaywrightFetcher(cfg.ScrapeTimeout, cfg.UserAgent)
		if err != nil {
			return nil, noop, err
		}
		return f, f.Close, nil
	case config.RendererHTTP, "":
		f, err := NewHTTPFetcher(cfg.ScrapeTimeout, cfg.UserAgent)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown scrape renderer %q", cfg.ScrapeRenderer)
	}
}

// HTTPFetcher fetches static HTML with a plain HTTP client. Cookies set by a
// retailer are kept per registrable domain, which some storefronts require
// before serving prices.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewHTTPFetcher(timeout time.Duration, userAgent string) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookiejar.New: %w", err)
	}
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		userAgent: userAgent,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %s: %w", pageURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	res, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return doc, nil
}
