package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"
)

// ChromedpFetcher renders pages in a headless Chrome driven over the DevTools
// protocol. One browser is started on the first fetch and every fetch opens
// its own tab in it.
type ChromedpFetcher struct {
	timeout time.Duration

	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc

	once    sync.Once
	initErr error
}

func NewChromedpFetcher(timeout time.Duration, userAgent string) *ChromedpFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.DisableGPU,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return &ChromedpFetcher{
		timeout:       timeout,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}
}

// start launches the shared browser. Tabs created before it runs would each
// launch a browser of their own.
func (f *ChromedpFetcher) start() error {
	f.once.Do(func() {
		if err := chromedp.Run(f.browserCtx); err != nil {
			f.initErr = fmt.Errorf("could not start chrome: %w", err)
		}
	})
	return f.initErr
}

func (f *ChromedpFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := f.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()
	// The tab hangs off the shared browser, so tie it to the caller too.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(pageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to render URL %s: %w", pageURL, err)
	}
	if resp != nil && (resp.Status < 200 || resp.Status > 299) {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, resp.Status)
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return doc, nil
}

func (f *ChromedpFetcher) Close() error {
	f.cancelBrowser()
	f.cancelAlloc()
	return nil
}

// PlaywrightFetcher renders pages with Playwright's Chromium. The driver and
// browser are started lazily on the first fetch.
type PlaywrightFetcher struct {
	timeout   time.Duration
	userAgent string

	once    sync.Once
	initErr error
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightFetcher(timeout time.Duration, userAgent string) (*PlaywrightFetcher, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("playwright fetcher needs a positive timeout")
	}
	return &PlaywrightFetcher{timeout: timeout, userAgent: userAgent}, nil
}

func (f *PlaywrightFetcher) start() error {
	f.once.Do(func() {
		pw, err := playwright.Run()
		if err != nil {
			f.initErr = fmt.Errorf("could not start playwright: %w", err)
			return
		}
		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(true),
		})
		if err != nil {
			_ = pw.Stop()
			f.initErr = fmt.Errorf("could not launch chromium: %w", err)
			return
		}
		f.pw, f.browser = pw, browser
	})
	return f.initErr
}

func (f *PlaywrightFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := f.start(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := f.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(f.userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	defer page.Close()
	stop := context.AfterFunc(ctx, func() { _ = page.Close() })
	defer stop()

	res, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(f.timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render URL %s: %w", pageURL, err)
	}
	if res != nil && (res.Status() < 200 || res.Status() > 299) {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, res.Status())
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read content of %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	return doc, nil
}

func (f *PlaywrightFetcher) Close() error {
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			return fmt.Errorf("closing chromium: %w", err)
		}
	}
	if f.pw != nil {
		return f.pw.Stop()
	}
	return nil
}
