package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the settings for one crawl session. It is decoupled from
// Viper so the engine can be constructed and tested independently.
type Config struct {
	RootURL            string
	AllowedDomain      string
	MaxDepth           int
	SaveInterval       int
	SettleDelay        time.Duration
	FetchQPS           float64
	RefreshKnownSongs  bool
	SongMarkerSelector string
	LoadMoreSelector   string
	LoadMoreWait       time.Duration
	PollInterval       time.Duration
	MaxPollAttempts    int
}

// Engine is the frontier-driven control loop. It pops work items, renders
// them through the PageFetcher, classifies song pages, exhausts load-more
// pagination, harvests links, and checkpoints the crawl state.
//
// The engine runs strictly sequentially: one browser session, one item at a
// time. It exclusively owns the CrawlState for the duration of Run.
type Engine struct {
	cfg       Config
	state     *CrawlState
	fetcher   PageFetcher
	extractor MetadataExtractor
	store     MetadataStore
	robots    RobotsPolicy
	links     *LinkFilter
	expand    *expander
	limiter   *rate.Limiter
	sleep     sleeper
	progress  *Progress
	logger    *zap.Logger
}

// NewEngine assembles an engine. store may be nil (no metadata mirror) and
// robots may be nil (no robots.txt enforcement).
func NewEngine(
	cfg Config,
	state *CrawlState,
	fetcher PageFetcher,
	extractor MetadataExtractor,
	store MetadataStore,
	robots RobotsPolicy,
	progress *Progress,
	logger *zap.Logger,
) *Engine {
	sleep := timerSleeper{}
	var limiter *rate.Limiter
	if cfg.FetchQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FetchQPS), 1)
	}
	return &Engine{
		cfg:       cfg,
		state:     state,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		robots:    robots,
		links:     NewLinkFilter(cfg.AllowedDomain),
		expand:    newExpander(cfg, sleep, logger),
		limiter:   limiter,
		sleep:     sleep,
		progress:  progress,
		logger:    logger,
	}
}

// Run drives the crawl until the frontier is exhausted or ctx is canceled.
// The crawl state is checkpointed every SaveInterval processed items and
// once more, unconditionally, on the way out.
func (e *Engine) Run(ctx context.Context) error {
	e.state.Seed(e.cfg.RootURL)
	e.logger.Info("Starting crawl",
		zap.String("root", e.cfg.RootURL),
		zap.Int("max_depth", e.cfg.MaxDepth),
		zap.Int("to_visit", e.state.FrontierLen()),
		zap.Int("visited", e.state.VisitedCount()),
	)

	defer e.checkpoint("final")

	processed := 0
	for e.state.FrontierLen() > 0 {
		if err := ctx.Err(); err != nil {
			e.logger.Info("Crawl interrupted", zap.Int("processed", processed))
			return err
		}

		item, ok := e.state.PopFront()
		if !ok {
			break
		}

		// Stale duplicate: two listings referenced it before either was
		// processed.
		if e.state.Visited(item.URL) {
			continue
		}

		if item.Depth > e.cfg.MaxDepth {
			e.logger.Info("Skipping page past max depth",
				zap.String("url", item.URL), zap.Int("depth", item.Depth))
			TotalDepthSkips.Inc()
			continue
		}

		if e.robots != nil && !e.robots.Allowed(ctx, item.URL) {
			e.logger.Info("Skipping page disallowed by robots.txt", zap.String("url", item.URL))
			e.state.MarkVisited(item.URL)
			continue
		}

		// Visited before any fetch attempt so a crash mid-fetch never
		// retries the same URL on resume.
		e.state.MarkVisited(item.URL)
		processed++
		e.noteProgress(item.URL, processed)

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("fetch pacing: %w", err)
			}
		}

		e.logger.Info("Visiting page", zap.String("url", item.URL), zap.Int("depth", item.Depth))
		if err := e.processItem(ctx, item); err != nil {
			e.logger.Warn("Abandoning page", zap.String("url", item.URL), zap.Error(err))
			TotalPageFailures.Inc()
		}
		TotalPagesProcessed.Inc()

		if processed%e.cfg.SaveInterval == 0 {
			e.checkpoint("periodic")
		}
	}

	e.logger.Info("Frontier exhausted; crawl complete",
		zap.Int("processed", processed),
		zap.Int("song_pages", e.state.SongPageCount()),
		zap.Int("metadata_records", e.state.RecordCount()),
	)
	return nil
}

// processItem runs one work item through the fetch → classify → expand →
// harvest pipeline. Errors abandon the item; they never stop the run.
func (e *Engine) processItem(ctx context.Context, item WorkItem) error {
	if err := e.fetcher.Navigate(ctx, item.URL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	e.sleep.Sleep(ctx, e.cfg.SettleDelay)

	isSong, err := e.fetcher.HasElement(ctx, e.cfg.SongMarkerSelector)
	if err != nil {
		return fmt.Errorf("song marker probe: %w", err)
	}
	if isSong {
		e.handleSongPage(ctx, item.URL)
	}

	// Song pages can still carry paginated related-content, so expansion
	// runs regardless of classification.
	e.expand.ExpandAll(ctx, e.fetcher)

	source, err := e.fetcher.PageSource(ctx)
	if err != nil {
		return fmt.Errorf("page source: %w", err)
	}
	e.harvestLinks(item, source)
	return nil
}

func (e *Engine) handleSongPage(ctx context.Context, url string) {
	if e.state.AddSongPage(url) {
		e.logger.Info("Found song page", zap.String("url", url))
		TotalSongPages.Inc()
	}

	if e.state.HasRecord(url) && !e.cfg.RefreshKnownSongs {
		e.logger.Debug("Metadata already extracted; skipping", zap.String("url", url))
		return
	}

	rec := e.extractor.Extract(ctx, url)
	TotalMetadataExtractions.Inc()
	if rec.Error != "" {
		e.logger.Warn("Metadata extraction failed",
			zap.String("url", url), zap.String("reason", rec.Error))
		TotalMetadataErrors.Inc()
	}
	e.state.AddRecord(rec)

	if e.store != nil {
		if err := e.store.SaveRecord(ctx, rec); err != nil {
			e.logger.Warn("Metadata mirror write failed",
				zap.String("url", url), zap.Error(err))
		}
	}
}

// harvestLinks parses the rendered source and enqueues every acceptable
// hyperlink at depth+1.
func (e *Engine) harvestLinks(item WorkItem, source string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		e.logger.Warn("Failed to parse page source", zap.String("url", item.URL), zap.Error(err))
		return
	}

	added := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := e.links.Normalize(item.URL, href)
		if !ok {
			return
		}
		if e.state.Enqueue(WorkItem{URL: abs, Depth: item.Depth + 1}) {
			added++
			TotalLinksEnqueued.Inc()
		}
	})
	if added > 0 {
		e.logger.Debug("Enqueued links",
			zap.String("url", item.URL), zap.Int("added", added))
	}
}

// checkpoint persists the crawl state. Failures are logged and retried at
// the next interval; the in-memory state stays authoritative.
func (e *Engine) checkpoint(reason string) {
	if err := e.state.Save(); err != nil {
		e.logger.Error("Checkpoint failed; continuing with in-memory state",
			zap.String("reason", reason), zap.Error(err))
		TotalCheckpointFailures.Inc()
		return
	}
	TotalCheckpoints.Inc()
	if e.progress != nil {
		e.progress.checkpoints.Add(1)
	}
}

func (e *Engine) noteProgress(url string, processed int) {
	if e.progress == nil {
		return
	}
	e.progress.setLastURL(url)
	e.progress.processed.Store(int64(processed))
	e.progress.frontier.Store(int64(e.state.FrontierLen()))
	e.progress.visited.Store(int64(e.state.VisitedCount()))
	e.progress.songs.Store(int64(e.state.SongPageCount()))
	e.progress.records.Store(int64(e.state.RecordCount()))
}
