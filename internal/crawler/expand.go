package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// expander drives the click-to-load-more protocol on the current page:
// wait for the control, remember the content height, click, then poll the
// height until it moves or the attempt budget runs out.
//
// Height is a liveness heuristic, not a DOM diff. A page that adds content
// at constant height ends expansion early, and unrelated height jitter can
// trigger an extra round; both are accepted. Any error ends the loop
// quietly and the partially expanded page is used as-is.
type expander struct {
	selector     string
	waitTimeout  time.Duration
	pollInterval time.Duration
	maxAttempts  int
	sleep        sleeper
	logger       *zap.Logger
}

func newExpander(cfg Config, sleep sleeper, logger *zap.Logger) *expander {
	return &expander{
		selector:     cfg.LoadMoreSelector,
		waitTimeout:  cfg.LoadMoreWait,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxPollAttempts,
		sleep:        sleep,
		logger:       logger,
	}
}

// ExpandAll exhausts the load-more control and returns the number of clicks
// performed.
func (e *expander) ExpandAll(ctx context.Context, fetcher PageFetcher) int {
	clicks := 0
	for {
		if ctx.Err() != nil {
			return clicks
		}
		present, err := fetcher.WaitClickable(ctx, e.selector, e.waitTimeout)
		if err != nil {
			e.logger.Debug("Load-more wait failed; ending expansion", zap.Error(err))
			return clicks
		}
		if !present {
			if clicks == 0 {
				e.logger.Debug("No load-more control on page")
			} else {
				e.logger.Debug("Load-more control gone; all content loaded",
					zap.Int("clicks", clicks))
			}
			return clicks
		}

		lastHeight, err := fetcher.ContentHeight(ctx)
		if err != nil {
			e.logger.Debug("Content height probe failed; ending expansion", zap.Error(err))
			return clicks
		}

		if err := fetcher.Click(ctx, e.selector); err != nil {
			e.logger.Warn("Load-more click failed; ending expansion", zap.Error(err))
			return clicks
		}
		clicks++
		TotalLoadMoreClicks.Inc()

		if !e.waitForGrowth(ctx, fetcher, lastHeight) {
			e.logger.Debug("No more content after click", zap.Int("clicks", clicks))
			return clicks
		}
	}
}

// waitForGrowth polls the content height until it changes from lastHeight,
// giving up after maxAttempts polls.
func (e *expander) waitForGrowth(ctx context.Context, fetcher PageFetcher, lastHeight int64) bool {
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		e.sleep.Sleep(ctx, e.pollInterval)
		if ctx.Err() != nil {
			return false
		}
		height, err := fetcher.ContentHeight(ctx)
		if err != nil {
			return false
		}
		if height != lastHeight {
			return true
		}
	}
	return false
}
