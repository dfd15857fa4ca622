package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/musicdex/pagalgana-crawler/internal/api"
	"github.com/musicdex/pagalgana-crawler/internal/config"
	"github.com/musicdex/pagalgana-crawler/internal/crawler"
	"github.com/musicdex/pagalgana-crawler/internal/extract"
	"github.com/musicdex/pagalgana-crawler/internal/fetcher/headless"
	"github.com/musicdex/pagalgana-crawler/internal/logging"
	"github.com/musicdex/pagalgana-crawler/internal/store/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts the catalogue crawl",
		Long: `Runs the breadth-first crawl from the configured root URL. Existing
checkpoint files are loaded first, so re-running the command resumes an
interrupted crawl. Ctrl-C triggers one final checkpoint before exit.`,
		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, progress, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Server.Port > 0 {
		srv := api.NewServer(progress, logger.Named("api"))
		go func() {
			if serr := srv.Serve(ctx, cfg.Server.Port); serr != nil {
				logger.Warn("Status server stopped", zap.Error(serr))
			}
		}()
		logger.Info("Status server listening", zap.Int("port", cfg.Server.Port))
	}

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	logger.Info("Crawl command finished")
	return nil
}

// buildEngine assembles the crawl engine and its collaborators from config.
// The returned cleanup closes the browser session and, when configured, the
// Postgres pool.
func buildEngine(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (*crawler.Engine, *crawler.Progress, func(), error) {
	paths := crawler.StatePaths{
		CrawlFile:     cfg.State.CrawlFile,
		SongPagesFile: cfg.State.SongPagesFile,
		MetadataFile:  cfg.State.MetadataFile,
	}.Join(cfg.State.Dir)

	state := crawler.NewCrawlState(paths, logger.Named("state"))
	state.Load()

	var fetcher crawler.PageFetcher
	if cfg.Headless.Enabled {
		f, err := headless.NewChromedp(headless.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
		}, logger.Named("browser"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("start browser: %w", err)
		}
		fetcher = f
	} else {
		fetcher = headless.NewNoop()
	}

	extractor := extract.New(cfg.Crawler.UserAgent, cfg.Headless.NavTimeout, logger.Named("extract"))

	var store crawler.MetadataStore
	if cfg.DB.DSN != "" {
		s, err := postgres.NewMetadataStore(ctx, postgres.MetadataStoreConfig{DSN: cfg.DB.DSN})
		if err != nil {
			if cerr := fetcher.Close(ctx); cerr != nil {
				logger.Warn("Failed to close browser", zap.Error(cerr))
			}
			return nil, nil, nil, fmt.Errorf("init metadata store: %w", err)
		}
		store = s
	}

	robots := crawler.NewRobotsGate(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger.Named("robots"))
	progress := crawler.NewProgress(uuid.NewString())

	engine := crawler.NewEngine(crawler.Config{
		RootURL:            cfg.Crawler.RootURL,
		AllowedDomain:      cfg.Crawler.AllowedDomain,
		MaxDepth:           cfg.Crawler.MaxDepth,
		SaveInterval:       cfg.Crawler.SaveInterval,
		SettleDelay:        cfg.Crawler.SettleDelay,
		FetchQPS:           cfg.Crawler.FetchQPS,
		RefreshKnownSongs:  cfg.Crawler.RefreshKnownSongs,
		SongMarkerSelector: cfg.Crawler.SongMarkerSelector,
		LoadMoreSelector:   cfg.Crawler.LoadMoreSelector,
		LoadMoreWait:       cfg.Crawler.LoadMoreWait,
		PollInterval:       cfg.Crawler.PollInterval,
		MaxPollAttempts:    cfg.Crawler.MaxPollAttempts,
	}, state, fetcher, extractor, store, robots, progress, logger.Named("crawler"))

	cleanup := func() {
		if cerr := fetcher.Close(context.Background()); cerr != nil {
			logger.Warn("Failed to close browser", zap.Error(cerr))
		}
		if store != nil {
			store.Close()
		}
	}
	return engine, progress, cleanup, nil
}
