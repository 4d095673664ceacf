package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// fakePage describes how the fake site answers one URL.
type fakePage struct {
	links []string
	// failTimes makes the first N renders fail.
	failTimes int
	// err makes every render fail.
	err error
	// block makes the render wait until its context is done.
	block bool
}

// fakeSite is a Renderer serving canned pages and tracking concurrency.
type fakeSite struct {
	pages map[string]fakePage
	delay time.Duration

	mu        sync.Mutex
	calls     map[string]int
	active    int
	maxActive int
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{pages: pages, calls: make(map[string]int)}
}

func (f *fakeSite) Render(ctx context.Context, u string) (*model.Page, error) {
	f.mu.Lock()
	f.calls[u]++
	n := f.calls[u]
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	p, ok := f.pages[u]
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", u)
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= p.failTimes {
		return nil, errors.New("connection reset by peer")
	}
	if p.err != nil {
		return nil, p.err
	}

	return &model.Page{
		URL:        u,
		FinalURL:   u,
		StatusCode: 200,
		Title:      "page " + u,
		HTML:       []byte("<html><body>" + u + "</body></html>"),
		Links:      p.links,
	}, nil
}

func (f *fakeSite) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeSite) callsFor(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

// fakeConverter renders "<format>:<key>" and fails for selected formats.
type fakeConverter struct {
	fail map[model.Format]bool
	// block makes the selected formats wait until their context is done.
	block map[model.Format]bool
}

func (c *fakeConverter) Convert(ctx context.Context, page *model.Page, format model.Format) ([]byte, error) {
	if c.block[format] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.fail[format] {
		return nil, fmt.Errorf("cannot produce %s", format)
	}
	return []byte(string(format) + ":" + page.Key), nil
}

// memWriter keeps artifacts in memory.
type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[model.Format]bool
}

func newMemWriter() *memWriter {
	return &memWriter{files: make(map[string][]byte), fail: make(map[model.Format]bool)}
}

func (w *memWriter) Write(ctx context.Context, a *model.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if w.fail[a.Format] {
		return "", errors.New("disk full")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[a.Path] = a.Content
	return a.Path, nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSpider(site Renderer, conv Converter, w ArtifactWriter, opts ...SpiderOption) *Spider {
	base := []SpiderOption{WithLogger(quietLogger()), WithTimeout(5 * time.Second)}
	return NewSpider(site, conv, w, append(base, opts...)...)
}

func TestSpiderThreePageSite(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.test/":  {links: []string{"/a", "/b"}},
		"https://example.test/a": {links: []string{"/b", "https://external.test/x"}},
		"https://example.test/b": {},
	})
	w := newMemWriter()
	spider := newTestSpider(site, &fakeConverter{}, w, WithConcurrency(2), WithRunID("run-1"))

	summary, err := spider.Run(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := site.totalCalls(); got != 3 {
		t.Errorf("expected 3 renders, got %d", got)
	}
	if got := w.count(); got != 3 {
		t.Errorf("expected 3 artifacts, got %d", got)
	}
	for _, path := range []string{"index.md", "a.md", "b.md"} {
		if _, ok := w.files[path]; !ok {
			t.Errorf("missing artifact %s", path)
		}
	}
	if summary.RunID != "run-1" {
		t.Errorf("unexpected run id %q", summary.RunID)
	}
	if summary.Visited != 3 || summary.Failed != 0 || summary.Discovered != 3 {
		t.Errorf("unexpected counters %+v", summary)
	}
	if summary.ScopeRejected != 1 {
		t.Errorf("expected the external link to be rejected, got %d", summary.ScopeRejected)
	}
	if summary.Outcome() != model.OutcomeComplete {
		t.Errorf("expected complete outcome, got %s", summary.Outcome())
	}
	if len(summary.Artifacts) != 3 || summary.Artifacts[0].URL != "https://example.test/" {
		t.Errorf("unexpected artifacts %+v", summary.Artifacts)
	}
}

func TestSpiderSeedTimeout(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.test/": {block: true},
	})
	w := newMemWriter()
	spider := newTestSpider(site, &fakeConverter{}, w, WithTimeout(50*time.Millisecond))

	summary, err := spider.Run(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Visited != 0 || summary.Failed != 1 {
		t.Errorf("expected 0 visited and 1 failed, got %+v", summary)
	}
	if w.count() != 0 {
		t.Errorf("expected no artifacts, got %d", w.count())
	}
	if summary.Outcome() != model.OutcomeNoPages {
		t.Errorf("expected no-pages outcome, got %s", summary.Outcome())
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Kind != model.FailureFetch {
		t.Fatalf("expected one fetch failure, got %+v", summary.Failures)
	}
	if !strings.Contains(summary.Failures[0].Reason, "timed out") {
		t.Errorf("expected a timeout reason, got %q", summary.Failures[0].Reason)
	}
}

func TestSpiderConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []SpiderOption
		seed string
		want error
	}{
		{name: "zero concurrency", opts: []SpiderOption{WithConcurrency(0)}, seed: "https://example.test/", want: ErrInvalidConcurrency},
		{name: "negative concurrency", opts: []SpiderOption{WithConcurrency(-1)}, seed: "https://example.test/", want: ErrInvalidConcurrency},
		{name: "no formats", opts: []SpiderOption{WithFormats()}, seed: "https://example.test/", want: ErrNoFormats},
		{name: "zero timeout", opts: []SpiderOption{WithTimeout(0)}, seed: "https://example.test/", want: ErrInvalidTimeout},
		{name: "bad scope", opts: []SpiderOption{WithScope("planet", "")}, seed: "https://example.test/", want: ErrUnsupportedScope},
		{name: "bad seed", seed: "mailto:x@example.test", want: ErrInvalidSeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			site := newFakeSite(map[string]fakePage{"https://example.test/": {}})
			spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), tt.opts...)

			summary, err := spider.Run(context.Background(), tt.seed)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if summary != nil {
				t.Error("expected no summary on configuration error")
			}
			if site.totalCalls() != 0 {
				t.Errorf("expected no render before failing, got %d", site.totalCalls())
			}
		})
	}
}

// wideSite returns a seed linking to n leaf pages.
func wideSite(n int) map[string]fakePage {
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < n; i++ {
		link := fmt.Sprintf("/p%d", i)
		links = append(links, link)
		pages["https://example.test"+link] = fakePage{}
	}
	pages["https://example.test/"] = fakePage{links: links}
	return pages
}

func TestSpiderConcurrencyBound(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{1, 3} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			t.Parallel()

			site := newFakeSite(wideSite(20))
			site.delay = 10 * time.Millisecond
			spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithConcurrency(limit))

			summary, err := spider.Run(context.Background(), "https://example.test/")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if summary.Visited != 21 {
				t.Errorf("expected 21 visited, got %d", summary.Visited)
			}
			if site.maxActive > limit {
				t.Errorf("observed %d concurrent renders, limit is %d", site.maxActive, limit)
			}
			if limit > 1 && site.maxActive < 2 {
				t.Errorf("expected renders to overlap, max was %d", site.maxActive)
			}
		})
	}
}

func TestSpiderVisitsEachURLOnce(t *testing.T) {
	t.Parallel()

	// Every page links to every page, including variants of itself.
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < 10; i++ {
		links = append(links, fmt.Sprintf("/n%d", i), fmt.Sprintf("/n%d/#frag", i), fmt.Sprintf("https://EXAMPLE.test:443/n%d", i))
	}
	links = append(links, "/", "./", "/index/..")
	pages["https://example.test/"] = fakePage{links: links}
	for i := 0; i < 10; i++ {
		pages[fmt.Sprintf("https://example.test/n%d", i)] = fakePage{links: links}
	}

	site := newFakeSite(pages)
	spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithConcurrency(5))

	summary, err := spider.Run(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for u := range pages {
		if n := site.callsFor(u); n != 1 {
			t.Errorf("%s rendered %d times", u, n)
		}
	}
	if summary.Discovered != 11 || summary.Visited != 11 {
		t.Errorf("unexpected counters %+v", summary)
	}
}

func TestSpiderFailureIsolation(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.test/":       {links: []string{"/ok", "/broken", "/missing"}},
		"https://example.test/ok":     {},
		"https://example.test/broken": {err: errors.New("status 500")},
	})
	w := newMemWriter()
	spider := newTestSpider(site, &fakeConverter{}, w, WithConcurrency(3))

	summary, err := spider.Run(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Visited != 2 || summary.Failed != 2 {
		t.Errorf("expected 2 visited and 2 failed, got %+v", summary)
	}
	if w.count() != 2 {
		t.Errorf("expected 2 artifacts, got %d", w.count())
	}
	if summary.Outcome() != model.OutcomePartial {
		t.Errorf("expected partial outcome, got %s", summary.Outcome())
	}
	failed := map[string]bool{}
	for _, f := range summary.FailuresByKind(model.FailureFetch) {
		failed[f.URL] = true
	}
	if !failed["https://example.test/broken"] || !failed["https://example.test/missing"] {
		t.Errorf("unexpected failures %+v", summary.Failures)
	}
}

func TestSpiderFormatIndependence(t *testing.T) {
	t.Parallel()

	t.Run("conversion failure keeps other formats", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{"https://example.test/": {}})
		w := newMemWriter()
		conv := &fakeConverter{fail: map[model.Format]bool{model.FormatPDF: true}}
		spider := newTestSpider(site, conv, w, WithFormats(model.FormatPDF, model.FormatMarkdown, model.FormatHTML))

		summary, err := spider.Run(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := w.files["index.md"]; !ok {
			t.Error("markdown artifact missing")
		}
		if _, ok := w.files["index.html"]; !ok {
			t.Error("html artifact missing")
		}
		if summary.Visited != 1 {
			t.Errorf("page should count as visited, got %d", summary.Visited)
		}
		conversions := summary.FailuresByKind(model.FailureConversion)
		if len(conversions) != 1 || conversions[0].Format != model.FormatPDF {
			t.Errorf("unexpected conversion failures %+v", summary.Failures)
		}
	})

	t.Run("hung conversion times out", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{"https://example.test/": {}})
		w := newMemWriter()
		conv := &fakeConverter{block: map[model.Format]bool{model.FormatPDF: true}}
		spider := newTestSpider(site, conv, w,
			WithFormats(model.FormatPDF, model.FormatMarkdown),
			WithTimeout(50*time.Millisecond),
		)

		done := make(chan *model.RunSummary, 1)
		go func() {
			summary, err := spider.Run(context.Background(), "https://example.test/")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			done <- summary
		}()

		var summary *model.RunSummary
		select {
		case summary = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("crawl did not finish while a conversion hung")
		}
		if summary == nil {
			return
		}
		if _, ok := w.files["index.md"]; !ok {
			t.Error("markdown artifact missing")
		}
		if summary.Visited != 1 {
			t.Errorf("page should count as visited, got %d", summary.Visited)
		}
		conversions := summary.FailuresByKind(model.FailureConversion)
		if len(conversions) != 1 || conversions[0].Format != model.FormatPDF {
			t.Fatalf("unexpected conversion failures %+v", summary.Failures)
		}
		if !strings.Contains(conversions[0].Reason, "timed out") {
			t.Errorf("expected a timeout reason, got %q", conversions[0].Reason)
		}
	})

	t.Run("write failure keeps other formats", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]fakePage{"https://example.test/": {}})
		w := newMemWriter()
		w.fail[model.FormatHTML] = true
		spider := newTestSpider(site, &fakeConverter{}, w, WithFormats(model.FormatHTML, model.FormatMarkdown))

		summary, err := spider.Run(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.count() != 1 {
			t.Errorf("expected 1 artifact, got %d", w.count())
		}
		writes := summary.FailuresByKind(model.FailureWrite)
		if len(writes) != 1 || writes[0].Format != model.FormatHTML {
			t.Errorf("unexpected write failures %+v", summary.Failures)
		}
	})
}

func TestSpiderLimits(t *testing.T) {
	t.Parallel()

	chain := map[string]fakePage{
		"https://example.test/":  {links: []string{"/a"}},
		"https://example.test/a": {links: []string{"/b"}},
		"https://example.test/b": {links: []string{"/c"}},
		"https://example.test/c": {},
	}

	tests := []struct {
		name string
		opts []SpiderOption
		want int
	}{
		{name: "unlimited depth", want: 4},
		{name: "seed only", opts: []SpiderOption{WithMaxDepth(0)}, want: 1},
		{name: "depth one", opts: []SpiderOption{WithMaxDepth(1)}, want: 2},
		{name: "max pages", opts: []SpiderOption{WithMaxPages(3)}, want: 3},
		{name: "ignore pattern", opts: []SpiderOption{WithIgnorePatterns([]string{"/b"})}, want: 2},
		{name: "follow pattern", opts: []SpiderOption{WithFollowPatterns([]string{"/a"})}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			site := newFakeSite(chain)
			spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), tt.opts...)
			summary, err := spider.Run(context.Background(), "https://example.test/")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if site.totalCalls() != tt.want || summary.Visited != tt.want {
				t.Errorf("expected %d pages, got %d renders and %d visited", tt.want, site.totalCalls(), summary.Visited)
			}
		})
	}
}

func TestSpiderRetries(t *testing.T) {
	t.Parallel()

	pages := map[string]fakePage{
		"https://example.test/":      {links: []string{"/flaky"}},
		"https://example.test/flaky": {failTimes: 2},
	}

	t.Run("recovers within the retry budget", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(pages)
		spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithMaxRetries(2))
		summary, err := spider.Run(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Visited != 2 || summary.Failed != 0 {
			t.Errorf("unexpected counters %+v", summary)
		}
		if n := site.callsFor("https://example.test/flaky"); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(pages)
		spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithMaxRetries(1))
		summary, err := spider.Run(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Failed != 1 {
			t.Errorf("expected 1 failed page, got %+v", summary)
		}
		if len(summary.Failures) != 1 || summary.Failures[0].Attempts != 2 {
			t.Errorf("unexpected failures %+v", summary.Failures)
		}
	})
}

func TestSpiderCancellation(t *testing.T) {
	t.Parallel()

	site := newFakeSite(wideSite(50))
	site.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorded int
	var mu sync.Mutex
	stopAfter := RecorderFunc(func(_ context.Context, _ *model.PageRecord) error {
		mu.Lock()
		defer mu.Unlock()
		recorded++
		if recorded == 3 {
			cancel()
		}
		return nil
	})

	spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithConcurrency(2), WithRecorder(stopAfter))

	done := make(chan *model.RunSummary)
	go func() {
		summary, err := spider.Run(ctx, "https://example.test/")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- summary
	}()

	var summary *model.RunSummary
	select {
	case summary = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !summary.Cancelled || summary.Outcome() != model.OutcomeCancelled {
		t.Errorf("expected a cancelled run, got %+v", summary)
	}
	if site.totalCalls() >= 51 {
		t.Errorf("expected cancellation to stop new renders, got %d", site.totalCalls())
	}
	site.mu.Lock()
	active := site.active
	site.mu.Unlock()
	if active != 0 {
		t.Errorf("expected no in-flight renders after Run returned, got %d", active)
	}
}

func TestSpiderRecorder(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string]fakePage{
		"https://example.test/": {links: []string{"/gone"}},
	})

	var mu sync.Mutex
	records := map[string]*model.PageRecord{}
	rec := RecorderFunc(func(_ context.Context, r *model.PageRecord) error {
		mu.Lock()
		defer mu.Unlock()
		records[r.URL] = r
		return errors.New("recorder errors are only logged")
	})

	spider := newTestSpider(site, &fakeConverter{}, newMemWriter(), WithRecorder(rec), WithRunID("abc"))
	summary, err := spider.Run(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Visited != 1 || summary.Failed != 1 {
		t.Errorf("unexpected counters %+v", summary)
	}

	seed := records["https://example.test/"]
	if seed == nil || seed.State != model.PageDone || seed.RunID != "abc" || len(seed.Artifacts) != 1 {
		t.Errorf("unexpected seed record %+v", seed)
	}
	if seed != nil && seed.Hash == "" {
		t.Error("expected the page hash to be recorded")
	}
	gone := records["https://example.test/gone"]
	if gone == nil || gone.State != model.PageFailed || gone.Depth != 1 {
		t.Errorf("unexpected failed record %+v", gone)
	}
}
