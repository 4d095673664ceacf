package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers use errors.Is to tell them apart.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed specified: provide the URL of the site to save")

	// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed: must be an http or https URL with a host")

	// ErrInvalidConcurrency is returned when the concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrNoFormats is returned when no output format is selected.
	ErrNoFormats = errors.New("no output format selected")

	// ErrInvalidTimeout is returned when the page timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxDepth is returned when the depth limit is below -1.
	// -1 means unlimited, 0 means the seed page only.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be -1 (unlimited) or greater")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry count is negative.
	ErrInvalidMaxRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidIdleWait is returned when the network idle wait is negative.
	ErrInvalidIdleWait = errors.New("invalid idle wait: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the body size limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnsupportedEngine is returned for an unknown rendering engine.
	ErrUnsupportedEngine = errors.New("unsupported engine: must be browser or http")

	// ErrUnsupportedScope is returned for an unknown scope mode.
	ErrUnsupportedScope = errors.New("unsupported scope: must be origin, host or domain")

	// ErrPDFRequiresBrowser is returned when PDF output is requested with
	// the http engine, which cannot print documents.
	ErrPDFRequiresBrowser = errors.New("pdf output requires the browser engine")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
