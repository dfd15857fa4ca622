package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesProcessed tracks pages popped from the frontier and fetched.
	TotalPagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_processed_total",
		Help: "The total number of pages rendered by the crawl engine.",
	})
	// TotalPageFailures tracks pages abandoned after a fetch or parse error.
	TotalPageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_page_failures_total",
		Help: "The total number of pages abandoned due to errors.",
	})
	// TotalDepthSkips tracks items dropped by the depth cutoff.
	TotalDepthSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_depth_skips_total",
		Help: "The total number of frontier items dropped for exceeding max depth.",
	})
	// TotalSongPages tracks newly discovered song pages.
	TotalSongPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_song_pages_total",
		Help: "The total number of song pages discovered.",
	})
	// TotalMetadataExtractions tracks metadata extraction attempts.
	TotalMetadataExtractions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_metadata_extractions_total",
		Help: "The total number of metadata extraction attempts.",
	})
	// TotalMetadataErrors tracks extraction attempts that produced an error record.
	TotalMetadataErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_metadata_errors_total",
		Help: "The total number of metadata extractions that failed.",
	})
	// TotalLinksEnqueued tracks accepted links pushed onto the frontier.
	TotalLinksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_links_enqueued_total",
		Help: "The total number of links accepted into the frontier.",
	})
	// TotalLoadMoreClicks tracks activations of the load-more control.
	TotalLoadMoreClicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_load_more_clicks_total",
		Help: "The total number of load-more clicks performed.",
	})
	// TotalCheckpoints tracks successful checkpoint saves.
	TotalCheckpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_checkpoints_total",
		Help: "The total number of successful crawl state checkpoints.",
	})
	// TotalCheckpointFailures tracks checkpoint saves that failed.
	TotalCheckpointFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_checkpoint_failures_total",
		Help: "The total number of failed crawl state checkpoints.",
	})
)
