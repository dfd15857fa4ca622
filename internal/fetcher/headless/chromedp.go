// Package headless contains PageFetcher implementations backed by browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the behavior of the chromedp fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements crawler.PageFetcher with a single long-lived headless
// Chrome tab. Navigation state (cookies, the current document) persists
// between calls, mirroring one human browsing session.
type Fetcher struct {
	cfg         Config
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp starts the browser and opens the session tab. Failure here is
// fatal to the crawl; there is no degraded non-browser mode.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	warmup := chromedp.Tasks{network.Enable()}
	if cfg.UserAgent != "" {
		warmup = append(warmup, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if err := chromedp.Run(tabCtx, warmup); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Fetcher{
		cfg:         cfg,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		logger:      logger,
	}, nil
}

// Close tears down the tab and the browser process.
func (f *Fetcher) Close(_ context.Context) error {
	f.tabCancel()
	f.allocCancel()
	return nil
}

// Navigate loads url in the session tab and waits for the body to be ready.
func (f *Fetcher) Navigate(ctx context.Context, url string) error {
	err := f.run(ctx, f.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// PageSource snapshots the current rendered DOM.
func (f *Fetcher) PageSource(ctx context.Context) (string, error) {
	var html string
	err := f.run(ctx, f.cfg.NavigationTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return html, nil
}

// HasElement reports whether selector matches in the current DOM.
func (f *Fetcher) HasElement(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	err := f.run(ctx, f.cfg.NavigationTimeout, chromedp.Evaluate(expr, &found))
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return found, nil
}

// WaitClickable blocks until selector is visible or timeout passes. A
// timeout is the normal "control absent" outcome and returns false, nil.
func (f *Fetcher) WaitClickable(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := f.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, fmt.Errorf("wait for %s: %w", selector, err)
	}
}

// Click activates the first visible element matching selector.
func (f *Fetcher) Click(ctx context.Context, selector string) error {
	err := f.run(ctx, f.cfg.NavigationTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// ContentHeight returns the page's scroll height, the metric the expansion
// loop polls to detect newly loaded content.
func (f *Fetcher) ContentHeight(ctx context.Context) (int64, error) {
	var height int64
	err := f.run(ctx, f.cfg.NavigationTimeout,
		chromedp.Evaluate("document.body.scrollHeight", &height),
	)
	if err != nil {
		return 0, fmt.Errorf("content height: %w", err)
	}
	return height, nil
}

// run executes actions on the session tab, bounded by timeout and by the
// caller's context.
func (f *Fetcher) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithTimeout(f.tabCtx, timeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		// Surface the caller's cancellation rather than the derived one.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return err
	}
	return nil
}

// forwardCancel propagates cancellation of parent into cancel until the
// returned stop function runs.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
