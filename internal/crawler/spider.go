package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/websaver/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Default Spider settings.
const (
	// DefaultConcurrency is the number of pipelines run at once.
	DefaultConcurrency = 10

	// DefaultRenderTimeout bounds a single render.
	DefaultRenderTimeout = 60 * time.Second
)

// Spider crawls one site: it schedules pipelines over a Frontier, never
// running more than the configured concurrency, and returns a
// RunSummary when no work is left or the context is cancelled.
//
// A Spider may run several crawls, sequentially or concurrently; all state
// of a crawl lives in that call to Run.
type Spider struct {
	renderer  Renderer
	converter Converter
	writer    ArtifactWriter
	recorders []Recorder
	logger    *slog.Logger

	// formats are written for every rendered page, in this order.
	formats []model.Format

	// concurrency is the maximum number of in-flight pipelines.
	concurrency int

	// timeout bounds each Render call and each conversion.
	timeout time.Duration

	// maxDepth limits link distance from the seed. Negative means unlimited;
	// 0 means only the seed page.
	maxDepth int

	// maxPages caps the number of distinct URLs admitted. 0 means unlimited.
	maxPages int

	// maxRetries is the number of extra render attempts per URL.
	maxRetries int

	scopeMode  ScopeMode
	pathPrefix string

	// ignorePatterns are URL path globs that are never followed.
	ignorePatterns []string

	// followPatterns, if set, are the only URL path globs followed.
	followPatterns []string

	// outputDir is reported in the summary.
	outputDir string

	runID func() string
	now   func() time.Time
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithFormats sets the output formats.
func WithFormats(formats ...model.Format) SpiderOption {
	return func(s *Spider) {
		s.formats = append([]model.Format(nil), formats...)
	}
}

// WithConcurrency sets the maximum number of pages processed at once.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		s.concurrency = n
	}
}

// WithTimeout sets the per-render timeout. It also bounds each conversion.
func WithTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.timeout = d
	}
}

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the seed, 1 = the seed plus the pages it links to, and so on.
// A negative value removes the limit.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages caps the number of distinct URLs admitted to the crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithMaxRetries sets how many times a failed render is retried.
func WithMaxRetries(n int) SpiderOption {
	return func(s *Spider) {
		s.maxRetries = n
	}
}

// WithScope sets the scope mode and an optional path prefix.
func WithScope(mode ScopeMode, pathPrefix string) SpiderOption {
	return func(s *Spider) {
		s.scopeMode = mode
		s.pathPrefix = pathPrefix
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts crawling to URL paths matching at least
// one of the patterns. An empty slice allows every path.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithRecorder adds a Recorder notified after every page.
func WithRecorder(r Recorder) SpiderOption {
	return func(s *Spider) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOutputDir records the output root in the run summary.
func WithOutputDir(dir string) SpiderOption {
	return func(s *Spider) {
		s.outputDir = dir
	}
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) SpiderOption {
	return func(s *Spider) {
		s.runID = func() string { return id }
	}
}

// NewSpider creates a Spider from its collaborators.
func NewSpider(renderer Renderer, converter Converter, writer ArtifactWriter, opts ...SpiderOption) *Spider {
	s := &Spider{
		renderer:    renderer,
		converter:   converter,
		writer:      writer,
		logger:      slog.Default(),
		formats:     []model.Format{model.FormatMarkdown},
		concurrency: DefaultConcurrency,
		timeout:     DefaultRenderTimeout,
		maxDepth:    -1,
		scopeMode:   ScopeOrigin,
		runID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validate checks the settings that make a run impossible.
func (s *Spider) validate() error {
	if s.concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if len(s.formats) == 0 {
		return ErrNoFormats
	}
	if s.timeout <= 0 {
		return ErrInvalidTimeout
	}
	_, err := ParseScopeMode(string(s.scopeMode))
	return err
}

// Run crawls the site rooted at seed.
//
// Configuration problems are returned as errors before anything is
// fetched. Once the crawl has started, page level failures are recorded
// in the summary and Run returns a nil error. Cancelling ctx stops new
// pages from being started; Run waits for in-flight pages and returns a
// summary marked as cancelled.
func (s *Spider) Run(ctx context.Context, seed string) (*model.RunSummary, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	seedKey, seedURL, err := NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}
	scope, err := NewScope(seedURL, s.scopeMode, s.pathPrefix)
	if err != nil {
		return nil, err
	}

	c := &crawl{
		Spider: s,
		normalizer: NewNormalizer(scope,
			WithIgnore(s.ignorePatterns),
			WithFollow(s.followPatterns),
		),
		frontier: NewFrontier(
			WithMaxEntries(s.maxPages),
			WithMaxAttempts(s.maxRetries+1),
		),
		wake: make(chan struct{}, 1),
		summary: &model.RunSummary{
			RunID:     s.runID(),
			Seed:      seedKey,
			OutputDir: s.outputDir,
			Formats:   append([]model.Format(nil), s.formats...),
			StartedAt: s.now(),
			Artifacts: make([]model.ArtifactRecord, 0),
			Failures:  make([]model.Failure, 0),
		},
	}
	c.frontier.Enqueue(seedKey, seedURL.String(), 0)

	s.logger.Info("starting crawl",
		"run", c.summary.RunID,
		"seed", seedKey,
		"scope", scope.String(),
		"formats", s.formats,
		"concurrency", s.concurrency,
	)

	cancelled := c.loop(ctx)
	summary := c.finish(cancelled || ctx.Err() != nil)

	s.logger.Info("crawl finished",
		"run", summary.RunID,
		"outcome", summary.Outcome(),
		"visited", summary.Visited,
		"failed", summary.Failed,
		"artifacts", len(summary.Artifacts),
		"duration", summary.Duration(),
	)
	return summary, nil
}

// crawl is the state of one Run.
type crawl struct {
	*Spider

	normalizer *Normalizer
	frontier   *Frontier

	// wake is signalled whenever the frontier may have new pending work
	// or a pipeline has finished. Capacity 1 keeps one pending signal.
	wake chan struct{}

	mu            sync.Mutex
	summary       *model.RunSummary
	scopeRejected int
}

// loop is the coordinating loop. It returns true when it stopped because
// ctx was cancelled.
func (c *crawl) loop(ctx context.Context) bool {
	slots := semaphore.NewWeighted(int64(c.concurrency))
	var g errgroup.Group
	cancelled := false

	for {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			cancelled = true
			break
		}

		entry, ok := c.frontier.TakeNext()
		if !ok {
			slots.Release(1)
			if c.frontier.IsExhausted() {
				break
			}
			select {
			case <-ctx.Done():
				cancelled = true
			case <-c.wake:
			}
			if cancelled {
				break
			}
			continue
		}

		g.Go(func() error {
			defer c.signal()
			defer slots.Release(1)
			c.process(ctx, entry)
			return nil
		})
	}

	// Pipelines never return errors; failures are kept in the summary.
	_ = g.Wait()
	return cancelled
}

// signal wakes the coordinating loop without blocking.
func (c *crawl) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *crawl) addFailure(f model.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Failures = append(c.summary.Failures, f)
}

func (c *crawl) addArtifact(a model.ArtifactRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Artifacts = append(c.summary.Artifacts, a)
}

func (c *crawl) addRejected(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopeRejected += n
}

// finish fills the counters and returns the summary.
func (c *crawl) finish(cancelled bool) *model.RunSummary {
	stats := c.frontier.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.FinishedAt = c.now()
	s.Visited = stats.Done
	s.Failed = stats.Failed
	s.Discovered = stats.Discovered
	s.ScopeRejected = c.scopeRejected
	s.Cancelled = cancelled
	s.Sort()
	return s
}
