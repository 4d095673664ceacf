package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/websaver/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "websaver"

	// DefaultConcurrency is the number of pages rendered at the same time.
	// Each in-flight page holds one browser tab.
	DefaultConcurrency = 10

	// DefaultTimeout bounds a single page render, navigation included.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxDepth means no depth limit.
	DefaultMaxDepth = -1

	// DefaultMaxPages means no page limit.
	DefaultMaxPages = 0

	// DefaultMaxRetries disables retries: a page that fails to render is
	// recorded as failed straight away.
	DefaultMaxRetries = 0

	// DefaultIdleWait is how long the network must stay quiet before a
	// rendered page is considered settled.
	DefaultIdleWait = 500 * time.Millisecond

	// DefaultOutputRoot is the directory under which per-site output
	// directories are created when no output directory is given.
	DefaultOutputRoot = "download"

	// DefaultMaxBodySize limits documents fetched by the http engine.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultUserAgent identifies websaver on the http engine.
	DefaultUserAgent = "websaver/1.0 (+https://github.com/nao1215/websaver)"

	// EngineBrowser renders pages in headless Chromium.
	EngineBrowser = "browser"

	// EngineHTTP fetches pages without executing JavaScript.
	EngineHTTP = "http"

	// ScopeOrigin limits the crawl to the seed's scheme, host and port.
	ScopeOrigin = "origin"

	// ScopeHost limits the crawl to the seed's host on either scheme.
	ScopeHost = "host"

	// ScopeDomain limits the crawl to the seed's registrable domain,
	// subdomains included.
	ScopeDomain = "domain"
)

// DefaultFormats is the format set used when none is given.
var DefaultFormats = []model.Format{model.FormatMarkdown}

// Config holds all configuration options for a websaver run.
// It is populated from CLI flags and the optional config file and passed
// down explicitly; there is no global configuration state.
type Config struct {
	// Seed is the URL the crawl starts from. It also defines the crawl scope.
	// A missing scheme defaults to https.
	Seed string

	// Formats lists the representations written for every page.
	Formats []model.Format

	// OutputDir is the root directory for artifacts.
	// When empty, DefaultOutputDir derives download/<host> from the seed.
	OutputDir string

	// Concurrency is the maximum number of pages processed at once.
	Concurrency int

	// Timeout bounds a single page render.
	Timeout time.Duration

	// MaxDepth is the maximum link distance from the seed.
	// -1 means unlimited and 0 means the seed page only.
	MaxDepth int

	// MaxPages caps how many distinct URLs are admitted. 0 means unlimited.
	MaxPages int

	// MaxRetries is how many extra render attempts a failing page gets.
	MaxRetries int

	// Scope selects which links are followed: origin, host or domain.
	Scope string

	// PathPrefix, when set, restricts the crawl to paths under it.
	PathPrefix string

	// IgnorePatterns are URL path globs that are never followed.
	IgnorePatterns []string

	// FollowPatterns, when set, are the only URL path globs followed.
	FollowPatterns []string

	// Headers are extra request headers sent with every page load.
	Headers map[string]string

	// Cookie is a Cookie header value sent with every page load.
	Cookie string

	// Engine selects the renderer: browser or http.
	Engine string

	// ShowBrowser runs Chromium with a visible window instead of headless.
	ShowBrowser bool

	// BrowserPath is a Chromium binary to use instead of the downloaded one.
	BrowserPath string

	// ProxyURL routes browser and http traffic through a proxy.
	ProxyURL string

	// IdleWait is how long the network must be idle before the page is read.
	// 0 disables the idle wait and the page is read after the load event.
	IdleWait time.Duration

	// UserAgent overrides the User-Agent header. Empty keeps the engine default.
	UserAgent string

	// MaxBodySize limits documents read by the http engine.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport prints the run summary as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the run summary as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the run summary to a file instead of stdout.
	ReportFile string

	// WriteManifest writes manifest.json into the output directory.
	WriteManifest bool

	// ConfigFilePath is an explicit configuration file path.
	// If empty, .websaver.yaml is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file.
	SiteConfigs *File

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory (~/.local/share/websaver on Linux).
	DBDir string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Formats:       append([]model.Format(nil), DefaultFormats...),
		Concurrency:   DefaultConcurrency,
		Timeout:       DefaultTimeout,
		MaxDepth:      DefaultMaxDepth,
		MaxPages:      DefaultMaxPages,
		MaxRetries:    DefaultMaxRetries,
		Scope:         ScopeOrigin,
		Engine:        EngineBrowser,
		IdleWait:      DefaultIdleWait,
		MaxBodySize:   DefaultMaxBodySize,
		WriteManifest: true,
		SaveToDB:      true,
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for websaver.
// On Linux: ~/.local/share/websaver
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for websaver.
// On Linux: ~/.config/websaver
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ParseSeed parses a seed string, defaulting a missing scheme to https.
// Schemes other than http and https are rejected.
func ParseSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoSeed
	}
	raw, err := model.CompleteSeed(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
	}
	return u, nil
}

// SeedURL returns the seed with its scheme filled in.
func (c *Config) SeedURL() (string, error) {
	u, err := ParseSeed(c.Seed)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// DefaultOutputDir returns download/<host> for the given seed, e.g.
// download/example.com for https://example.com/docs.
func DefaultOutputDir(seed string) string {
	u, err := ParseSeed(seed)
	if err != nil {
		return DefaultOutputRoot
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return DefaultOutputRoot
	}
	return filepath.Join(DefaultOutputRoot, host)
}

// ResolvedOutputDir returns OutputDir, or the seed derived default.
func (c *Config) ResolvedOutputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return DefaultOutputDir(c.Seed)
}

// ApplySiteConfig merges the configuration file entry for the seed's host.
// Values from the file only fill settings the user left at their defaults,
// except headers, which are merged.
func (c *Config) ApplySiteConfig() error {
	if c.SiteConfigs == nil {
		return nil
	}
	u, err := ParseSeed(c.Seed)
	if err != nil {
		return err
	}
	site := c.SiteConfigs.GetSiteConfig(strings.ToLower(u.Hostname()))

	if c.Cookie == "" {
		c.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		merged := make(map[string]string, len(site.Headers)+len(c.Headers))
		for k, v := range site.Headers {
			merged[k] = v
		}
		for k, v := range c.Headers {
			merged[k] = v
		}
		c.Headers = merged
	}
	if c.MaxDepth == DefaultMaxDepth && site.Depth != 0 {
		c.MaxDepth = site.Depth
	}
	if len(c.IgnorePatterns) == 0 {
		c.IgnorePatterns = site.IgnorePatterns
	}
	if len(c.FollowPatterns) == 0 {
		c.FollowPatterns = site.FollowPatterns
	}
	if len(site.Formats) > 0 && sameFormats(c.Formats, DefaultFormats) {
		formats, err := model.ParseFormats(site.Formats)
		if err != nil {
			return err
		}
		c.Formats = formats
	}
	return nil
}

func sameFormats(a, b []model.Format) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if _, err := ParseSeed(c.Seed); err != nil {
		return err
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if len(c.Formats) == 0 {
		return ErrNoFormats
	}
	for _, f := range c.Formats {
		if !f.Valid() {
			return fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, f)
		}
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxDepth < -1 {
		return ErrInvalidMaxDepth
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.IdleWait < 0 {
		return ErrInvalidIdleWait
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	switch c.Scope {
	case ScopeOrigin, ScopeHost, ScopeDomain:
	default:
		return ErrUnsupportedScope
	}

	switch c.Engine {
	case EngineBrowser:
	case EngineHTTP:
		for _, f := range c.Formats {
			if f == model.FormatPDF {
				return ErrPDFRequiresBrowser
			}
		}
	default:
		return ErrUnsupportedEngine
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
