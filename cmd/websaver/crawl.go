package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/nao1215/websaver/internal/config"
	"github.com/nao1215/websaver/internal/convert"
	"github.com/nao1215/websaver/internal/crawler"
	"github.com/nao1215/websaver/internal/database"
	wslog "github.com/nao1215/websaver/internal/log"
	"github.com/nao1215/websaver/internal/model"
	"github.com/nao1215/websaver/internal/render"
	"github.com/nao1215/websaver/internal/report"
	"github.com/nao1215/websaver/internal/writer"
	"github.com/spf13/cobra"
)

// errCrawlCancelled is returned when the run was interrupted. The partial
// results are still saved and reported.
var errCrawlCancelled = errors.New("crawl cancelled")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website and save its pages",
		Long: `Crawl starts at the given URL, follows every link within the seed's scope
and saves each page it reaches in the requested formats.

Output files mirror the URL path below the output directory, e.g.
https://example.com/docs/intro is saved as download/example.com/docs/intro.md.
A manifest.json mapping every URL to its files is written next to them.

Examples:
  # Save a site as Markdown (default) into download/example.com
  websaver crawl https://example.com

  # Save HTML and PDF, at most 2 links away from the seed
  websaver crawl -f html -f pdf -d 2 https://example.com/docs/

  # Fetch a static site without a browser
  websaver crawl --engine http -c 20 example.com

  # Follow links on every subdomain, only below /guide
  websaver crawl --scope domain --path-prefix /guide https://www.example.com/guide/

  # Print the run summary as JSON
  websaver crawl --json https://example.com

Configuration file (.websaver.yaml) example:
  defaults:
    formats: [markdown]
  sites:
    docs.example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 5`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Output flags
	cmd.Flags().StringSliceP("format", "f", []string{string(model.FormatMarkdown)},
		"Output format: html, markdown, pdf (repeatable or comma separated)")
	cmd.Flags().StringP("output", "o", "",
		"Output directory (default: download/<host>)")
	cmd.Flags().Bool("no-manifest", false,
		"Do not write manifest.json")

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Maximum number of pages processed at once")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for rendering a single page")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link distance from the seed (-1 for unlimited)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl (0 for unlimited)")
	cmd.Flags().Int("retries", config.DefaultMaxRetries,
		"Extra render attempts for a page that failed")
	cmd.Flags().String("scope", config.ScopeOrigin,
		"Links to follow: origin, host or domain")
	cmd.Flags().String("path-prefix", "",
		"Only crawl URL paths under this prefix")
	cmd.Flags().StringSlice("ignore", nil,
		"URL path glob to skip (repeatable)")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl URL paths matching this glob (repeatable)")

	// Request flags
	cmd.Flags().StringArrayP("header", "H", nil,
		`Extra request header, e.g. -H "Authorization: Bearer token" (repeatable)`)
	cmd.Flags().String("cookie", "",
		`Cookie header value, e.g. "session=abc; lang=en"`)
	cmd.Flags().String("user-agent", "",
		"Override the User-Agent header")
	cmd.Flags().String("proxy", "",
		"Proxy URL (http, https or socks5)")

	// Engine flags
	cmd.Flags().String("engine", config.EngineBrowser,
		"Renderer: browser (headless Chromium) or http (no JavaScript)")
	cmd.Flags().Bool("show-browser", false,
		"Show the browser window instead of running headless")
	cmd.Flags().String("browser-path", "",
		"Chromium binary to use instead of the downloaded one")
	cmd.Flags().Duration("idle-wait", config.DefaultIdleWait,
		"Network idle time before a rendered page is captured (0 to disable)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum document size in bytes for the http engine")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .websaver.yaml in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the report to a file instead of stdout")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ApplySiteConfig(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd), logJSON)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing in-flight pages...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	if len(args) > 0 {
		cfg.Seed = args[0]
	}

	formatNames, err := flags.GetStringSlice("format")
	if err != nil {
		return nil, err
	}
	cfg.Formats, err = model.ParseFormats(formatNames)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noManifest, err := flags.GetBool("no-manifest")
	if err != nil {
		return nil, err
	}
	cfg.WriteManifest = !noManifest

	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	scope, err := flags.GetString("scope")
	if err != nil {
		return nil, err
	}
	cfg.Scope = strings.ToLower(strings.TrimSpace(scope))
	if cfg.PathPrefix, err = flags.GetString("path-prefix"); err != nil {
		return nil, err
	}
	if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
		return nil, err
	}

	rawHeaders, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}

	engine, err := flags.GetString("engine")
	if err != nil {
		return nil, err
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(engine))
	if cfg.ShowBrowser, err = flags.GetBool("show-browser"); err != nil {
		return nil, err
	}
	if cfg.BrowserPath, err = flags.GetString("browser-path"); err != nil {
		return nil, err
	}
	if cfg.IdleWait, err = flags.GetDuration("idle-wait"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicit path must exist; otherwise a missing file means no
	// per-site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	return cfg, nil
}

// parseHeaders turns "Name: value" strings into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: value\")", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// setupLogger creates a logger that masks credentials before writing.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return wslog.NewSecureJSONLogger(w, verbose)
	}
	return wslog.NewSecureLogger(w, verbose)
}

// engine bundles the renderer and converter of one crawl.
type engine struct {
	renderer  crawler.Renderer
	converter crawler.Converter
	close     func() error
}

// newEngine builds the renderer selected by cfg.Engine together with a
// converter for cfg.Formats.
func newEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	switch cfg.Engine {
	case config.EngineHTTP:
		client, err := render.NewHTTPClient(render.ClientOptions{
			ProxyURL:  cfg.ProxyURL,
			Timeout:   cfg.Timeout,
			Cookie:    cfg.Cookie,
			Headers:   cfg.Headers,
			UserAgent: httpUserAgent(cfg.UserAgent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		converter, err := convert.New(cfg.Formats)
		if err != nil {
			return nil, err
		}
		return &engine{
			renderer: render.NewHTTPRenderer(client,
				render.WithMaxBodySize(cfg.MaxBodySize),
				render.WithHTTPLogger(logger),
			),
			converter: converter,
			close: func() error {
				client.CloseIdleConnections()
				return nil
			},
		}, nil

	case config.EngineBrowser:
		browser, err := render.NewBrowser(render.BrowserOptions{
			Headless: !cfg.ShowBrowser,
			ProxyURL: cfg.ProxyURL,
			BinPath:  cfg.BrowserPath,
		})
		if err != nil {
			return nil, err
		}
		renderer := render.NewBrowserRenderer(browser,
			render.WithIdleWait(cfg.IdleWait),
			render.WithHeaders(cfg.Headers),
			render.WithCookie(cfg.Cookie),
			render.WithUserAgent(cfg.UserAgent),
			render.WithBrowserLogger(logger),
		)
		converter, err := convert.New(cfg.Formats, convert.WithPrinter(renderer))
		if err != nil {
			_ = browser.Close()
			return nil, err
		}
		return &engine{
			renderer:  renderer,
			converter: converter,
			close:     browser.Close,
		}, nil

	default:
		return nil, config.ErrUnsupportedEngine
	}
}

// logRequestSettings logs what every page request carries. Credentials
// are masked by the secure handler.
func logRequestSettings(logger *slog.Logger, cfg *config.Config) {
	headers := make([]any, 0, len(cfg.Headers))
	for _, name := range slices.Sorted(maps.Keys(cfg.Headers)) {
		headers = append(headers, slog.String(strings.ToLower(name), cfg.Headers[name]))
	}
	logger.Debug("request settings",
		"engine", cfg.Engine,
		slog.Group("headers", headers...),
		"cookie", cfg.Cookie,
		"proxy", cfg.ProxyURL,
	)
}

// httpUserAgent returns ua or the websaver default for the http engine.
func httpUserAgent(ua string) string {
	if ua != "" {
		return ua
	}
	return config.DefaultUserAgent
}

// runCrawl executes one crawl run and reports it.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	seed, err := cfg.SeedURL()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	scopeMode, err := crawler.ParseScopeMode(cfg.Scope)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	outputDir := cfg.ResolvedOutputDir()

	var db *database.CrawlDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	logRequestSettings(logger, cfg)
	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.close(); err != nil {
			logger.Error("failed to close renderer", "error", err)
		}
	}()

	runID := uuid.NewString()
	opts := []crawler.SpiderOption{
		crawler.WithFormats(cfg.Formats...),
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithTimeout(cfg.Timeout),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithMaxRetries(cfg.MaxRetries),
		crawler.WithScope(scopeMode, cfg.PathPrefix),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithOutputDir(outputDir),
		crawler.WithRunID(runID),
		crawler.WithLogger(logger),
		crawler.WithRecorder(newProgressRecorder(stderr)),
	}
	if db != nil {
		opts = append(opts, crawler.WithRecorder(db))
	}

	fileWriter := writer.NewFileWriter(outputDir)
	spider := crawler.NewSpider(eng.renderer, eng.converter, fileWriter, opts...)

	fmt.Fprintf(stderr, "Crawling %s into %s (run %s)...\n", seed, outputDir, runID)
	summary, err := spider.Run(ctx, seed)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.WriteManifest {
		path, err := writer.WriteManifest(outputDir, summary)
		if err != nil {
			logger.Error("failed to write manifest", "error", err)
		} else {
			logger.Debug("manifest written", "path", path)
		}
	}

	if db != nil {
		// The run is recorded even when ctx was cancelled.
		if err := db.SaveRun(context.WithoutCancel(ctx), summary); err != nil {
			logger.Error("failed to save run", "run", summary.RunID, "error", err)
		}
	}

	if err := outputReport(cfg, summary, stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if summary.Cancelled {
		return errCrawlCancelled
	}
	return nil
}

// newProgressRecorder prints one line per finished page.
func newProgressRecorder(w io.Writer) crawler.Recorder {
	var n atomic.Int64
	return crawler.RecorderFunc(func(_ context.Context, rec *model.PageRecord) error {
		status := "saved"
		if rec.State == model.PageFailed {
			status = "failed"
		}
		fmt.Fprintf(w, "[%d] %-6s %s\n", n.Add(1), status, rec.URL)
		return nil
	})
}

// outputReport writes the run summary in the requested format.
func outputReport(cfg *config.Config, summary *model.RunSummary, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		// Reports list every saved URL, which may include private paths.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err := w.Write(summary)
	return err
}
