// Package render drives a headless browser session over the Chrome
// DevTools Protocol and extracts listing identifiers from rendered pages.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// Sentinel errors callers branch on.
var (
	ErrBrowserStart = errors.New("browser start failed")
	ErrNavigate     = errors.New("navigation failed")
	ErrTimeout      = errors.New("wait timed out")
)

const readyPollInterval = 250 * time.Millisecond

// Client launches headless browser sessions. One Client is shared across
// poll tasks; each session it opens is owned by exactly one task.
type Client struct {
	browserPath string
	limiter     *rate.Limiter
	log         *slog.Logger
}

// NewClient creates a Client. browserPath may be empty to use the chrome
// binary found on PATH. Navigations across all sessions share one rate
// limiter so concurrent searches stay polite to the source site.
func NewClient(browserPath string, log *slog.Logger) *Client {
	return &Client{
		browserPath: browserPath,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 2),
		log:         log,
	}
}

// Open launches a headless browser instance and returns a session bound to
// a fresh tab. The caller must Close the session on every exit path.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
	)
	if c.browserPath != "" {
		opts = append(opts, chromedp.ExecPath(c.browserPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Empty run forces the browser process to start now, so a missing or
	// broken binary fails here instead of on first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %v", ErrBrowserStart, err)
	}

	c.log.Debug("browser session opened")
	return &Session{
		ctx:     tabCtx,
		limiter: c.limiter,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
		run:     chromedp.Run,
	}, nil
}

// Session is one exclusive headless-browser tab.
type Session struct {
	ctx     context.Context
	limiter *rate.Limiter
	cancels []context.CancelFunc
	// run executes actions against the tab; a field so tests can stand in
	// for the browser.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

// runBounded executes actions on the tab context, cancelled as soon as
// bound expires. A wedged browser therefore cannot block past the caller's
// deadline.
func (s *Session) runBounded(bound context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(bound, cancel)
	defer stop()
	return s.run(runCtx, actions...)
}

// Navigate loads the given URL in the session's tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigate, err)
	}
	if err := s.runBounded(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigate, url, err)
	}
	return nil
}

// AwaitReady blocks until document.readyState reports "complete", polling
// every 250ms. Returns ErrTimeout if the page is not ready within timeout.
func (s *Session) AwaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		var state string
		if err := s.runBounded(waitCtx,
			chromedp.Evaluate(`document.readyState`, &state),
		); err == nil && state == "complete" {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("%w: page not ready after %s", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// AwaitListings evaluates the listing extraction script every interval
// until it yields at least one identifier, returning the identifiers in
// document order. Returns ErrTimeout if none appear within timeout.
func (s *Session) AwaitListings(ctx context.Context, timeout, interval time.Duration) ([]string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ids, err := s.extractListings(waitCtx)
		if err == nil && len(ids) > 0 {
			return ids, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: no listings after %s", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

func (s *Session) extractListings(ctx context.Context) ([]string, error) {
	var raw []string
	if err := s.runBounded(ctx,
		chromedp.Evaluate(extractScript, &raw),
	); err != nil {
		return nil, err
	}
	return dropEmptyIDs(raw), nil
}

// ScrollToBottom scrolls the page to trigger lazy-loaded content.
// Best-effort: failures are swallowed.
func (s *Session) ScrollToBottom(ctx context.Context) {
	_ = s.runBounded(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
}

// FetchTitle navigates to url and returns the cleaned page title.
func (s *Session) FetchTitle(ctx context.Context, url string) (string, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return "", err
	}
	var title string
	if err := s.runBounded(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("%w: title of %s: %v", ErrNavigate, url, err)
	}
	return CleanTitle(title), nil
}

// Close releases the tab and the browser process. Safe to call via defer on
// every exit path.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// CleanTitle strips the site's trailing "| vendor" suffix and surrounding
// whitespace from a page title.
func CleanTitle(title string) string {
	if i := strings.Index(title, "|"); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}
