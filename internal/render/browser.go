package render

import (
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions configures NewBrowser.
type BrowserOptions struct {
	// Headless hides the browser window.
	Headless bool

	// ProxyURL is passed to the browser as its proxy server.
	ProxyURL string

	// BinPath is the browser executable. Empty means rod looks one up,
	// downloading a Chromium build when none is installed.
	BinPath string
}

// Browser wraps a rod.Browser instance together with its launcher.
type Browser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	closed   bool
}

// NewBrowser launches a browser and connects to it.
func NewBrowser(opts BrowserOptions) (*Browser, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}
	if opts.ProxyURL != "" {
		l = l.Proxy(opts.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrowserLaunch, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %w", ErrBrowserLaunch, err)
	}

	return &Browser{
		browser:  browser,
		launcher: l,
	}, nil
}

// NewPage opens a blank tab.
func (b *Browser) NewPage() (*rod.Page, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrBrowserClosed
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// Close closes the browser and kills its process. It is safe to call more
// than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}
