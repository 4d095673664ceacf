package crawler

import (
	"errors"
	"fmt"
)

// Configuration errors returned by Spider.Run before any page is rendered.
var (
	// ErrInvalidConcurrency is returned when the concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrNoFormats is returned when no output format is configured.
	ErrNoFormats = errors.New("no output format configured")

	// ErrInvalidTimeout is returned when the render timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid render timeout: must be positive")

	// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrUnsupportedScope is returned for an unknown scope mode.
	ErrUnsupportedScope = errors.New("unsupported scope mode")
)

// ErrScopeRejected is the parent of every link rejection. Rejected links
// are dropped and counted, never recorded as failures.
var ErrScopeRejected = errors.New("link rejected")

// Link rejection reasons. All of them satisfy errors.Is(err, ErrScopeRejected).
var (
	ErrInvalidLink       = fmt.Errorf("%w: malformed link", ErrScopeRejected)
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported scheme", ErrScopeRejected)
	ErrOutOfScope        = fmt.Errorf("%w: outside crawl scope", ErrScopeRejected)
	ErrFiltered          = fmt.Errorf("%w: excluded by pattern", ErrScopeRejected)
)

// Render errors.
var (
	// ErrRenderTimeout wraps a render that exceeded its timeout.
	ErrRenderTimeout = errors.New("render timed out")

	// ErrConvertTimeout wraps a conversion that exceeded the per-page timeout.
	ErrConvertTimeout = errors.New("conversion timed out")

	// ErrEmptyPage is returned when a renderer reports success without a page.
	ErrEmptyPage = errors.New("renderer returned no page")
)
