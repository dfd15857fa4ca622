package headless

import (
	"context"
	"errors"
	"time"
)

// ErrBrowserUnavailable indicates no browser session is configured.
var ErrBrowserUnavailable = errors.New("browser session not available")

// Noop implements crawler.PageFetcher but fails every operation. It exists
// so the binary can start with headless.enabled=false (e.g. to inspect or
// repair checkpoint files) without a Chrome install.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) Navigate(context.Context, string) error { return ErrBrowserUnavailable }

func (Noop) PageSource(context.Context) (string, error) { return "", ErrBrowserUnavailable }

func (Noop) HasElement(context.Context, string) (bool, error) { return false, ErrBrowserUnavailable }

func (Noop) WaitClickable(context.Context, string, time.Duration) (bool, error) {
	return false, ErrBrowserUnavailable
}

func (Noop) Click(context.Context, string) error { return ErrBrowserUnavailable }

func (Noop) ContentHeight(context.Context) (int64, error) { return 0, ErrBrowserUnavailable }

func (Noop) Close(context.Context) error { return nil }
