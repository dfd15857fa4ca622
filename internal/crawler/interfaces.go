package crawler

import (
	"context"
	"time"
)

// PageFetcher is the browser session the engine drives. One session serves
// the whole crawl; implementations hold navigation state between calls.
type PageFetcher interface {
	// Navigate loads url and blocks until the document is ready.
	Navigate(ctx context.Context, url string) error
	// PageSource returns the current rendered DOM as HTML.
	PageSource(ctx context.Context) (string, error)
	// HasElement reports whether the selector matches in the current DOM.
	HasElement(ctx context.Context, selector string) (bool, error)
	// WaitClickable blocks up to timeout for the selector to become
	// interactable. It returns false, nil when the element never appears;
	// absence is a normal condition, not an error.
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Click activates the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// ContentHeight returns document.body.scrollHeight for the current page.
	ContentHeight(ctx context.Context) (int64, error)
	// Close releases the browser session.
	Close(ctx context.Context) error
}

// MetadataExtractor fetches a song page independently of the crawl browser
// and produces its metadata record. Failures surface inside the record,
// never as an error.
type MetadataExtractor interface {
	Extract(ctx context.Context, url string) MetadataRecord
}

// MetadataStore mirrors extracted records to durable storage beyond the
// checkpoint files (e.g. Postgres).
type MetadataStore interface {
	SaveRecord(ctx context.Context, rec MetadataRecord) error
	Close()
}

// RobotsPolicy decides whether a URL may be fetched at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// sleeper abstracts timed waits so tests can run the expansion loop and the
// settle delay without real timers.
type sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
