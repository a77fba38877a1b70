package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
	"github.com/pricedrop/pricedrop-monitor/internal/util"
)

var (
	// ErrPriceNotFound means the page loaded but no selector or JSON-LD
	// offer yielded a price.
	ErrPriceNotFound = errors.New("price not found on page")
	// ErrDomainNotAllowed means the URL's host is outside ALLOWED_DOMAINS.
	ErrDomainNotAllowed = errors.New("domain not in allowlist")
)

type Scraper interface {
	Scrape(ctx context.Context, productURL string) (*models.ScrapeResult, error)
}

type Client struct {
	fetcher        Fetcher
	selectors      SelectorConfig
	allowedDomains []string
	ratePerHost    rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg *config.Config, fetcher Fetcher, selectors SelectorConfig) *Client {
	return &Client{
		fetcher:        fetcher,
		selectors:      selectors,
		allowedDomains: cfg.AllowedDomains,
		ratePerHost:    rate.Limit(cfg.ScrapeRatePerHost),
		limiters:       make(map[string]*rate.Limiter),
	}
}

// Scrape fetches a product page and extracts its title and raw price text.
// Requests to the same retailer are throttled to ScrapeRatePerHost.
func (c *Client) Scrape(ctx context.Context, productURL string) (*models.ScrapeResult, error) {
	parsedURL, err := url.Parse(productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %s: %w", productURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme)
	}
	if !util.HostAllowed(parsedURL.Hostname(), c.allowedDomains) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, parsedURL.Hostname())
	}

	domain := util.GetDomain(productURL)
	if err := c.limiter(domain).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter for %s: %w", domain, err)
	}

	doc, err := c.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, err
	}

	result := c.extract(doc, domain)
	result.URL = productURL
	if result.RawPrice == "" {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotFound, productURL)
	}
	slog.Debug("Scraped product page", "url", productURL, "price", result.RawPrice, "source", result.Source)
	return result, nil
}

// extract tries retailer selectors, then JSON-LD, then the default
// selectors, for the price and the title independently.
func (c *Client) extract(doc *goquery.Document, domain string) *models.ScrapeResult {
	var result models.ScrapeResult

	retailer, hasRetailer := c.selectors.For(domain)
	ld, hasLD := extractJSONLD(doc)

	if hasRetailer {
		result.RawPrice, result.Source = firstMatch(doc, retailer.Price, true)
		result.Title, _ = firstMatch(doc, retailer.Title, false)
	}
	if result.RawPrice == "" && hasLD {
		result.RawPrice, result.Source = ld.Price, ld.Source
	}
	if result.Title == "" && hasLD {
		result.Title = ld.Name
	}
	if result.RawPrice == "" {
		result.RawPrice, result.Source = firstMatch(doc, c.selectors.Default.Price, true)
	}
	if result.Title == "" {
		result.Title, _ = firstMatch(doc, c.selectors.Default.Title, false)
	}
	return &result
}

// firstMatch returns the first non-empty value found by the selectors, and
// the selector that produced it. Price values must contain a digit.
func firstMatch(doc *goquery.Document, selectors []Selector, needDigit bool) (string, string) {
	for _, sel := range selectors {
		var value string
		doc.Find(sel.CSS).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if sel.Attr != "" {
				value, _ = s.Attr(sel.Attr)
			} else {
				value = s.Text()
			}
			value = strings.Join(strings.Fields(value), " ")
			if needDigit && !strings.ContainsAny(value, "0123456789") {
				value = ""
			}
			return value == ""
		})
		if value != "" {
			return value, sel.String()
		}
	}
	return "", ""
}

func (c *Client) limiter(domain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[domain]
	if !ok {
		l = rate.NewLimiter(c.ratePerHost, 1)
		c.limiters[domain] = l
	}
	return l
}
