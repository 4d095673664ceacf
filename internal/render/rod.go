package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nao1215/websaver/internal/model"
	"github.com/nao1215/websaver/internal/parser"
)

// DefaultIdleWait is how long the network must stay quiet before the DOM
// is captured.
const DefaultIdleWait = 500 * time.Millisecond

// BrowserRenderer renders pages in a real browser so that client-side
// scripts run before the document is captured. It also implements
// convert.Printer.
type BrowserRenderer struct {
	browser   *Browser
	idleWait  time.Duration
	headers   map[string]string
	cookie    string
	userAgent string
	logger    *slog.Logger
}

// BrowserRendererOption configures a BrowserRenderer.
type BrowserRendererOption func(*BrowserRenderer)

// WithIdleWait sets how long the network must be idle before capture.
// 0 reads the page right after the load event.
func WithIdleWait(d time.Duration) BrowserRendererOption {
	return func(r *BrowserRenderer) {
		if d >= 0 {
			r.idleWait = d
		}
	}
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) BrowserRendererOption {
	return func(r *BrowserRenderer) {
		r.headers = headers
	}
}

// WithCookie sets a raw Cookie header sent with every request.
func WithCookie(cookie string) BrowserRendererOption {
	return func(r *BrowserRenderer) {
		r.cookie = cookie
	}
}

// WithUserAgent overrides the browser's User-Agent.
func WithUserAgent(ua string) BrowserRendererOption {
	return func(r *BrowserRenderer) {
		r.userAgent = ua
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(l *slog.Logger) BrowserRendererOption {
	return func(r *BrowserRenderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewBrowserRenderer creates a BrowserRenderer on top of b.
// The caller owns b and closes it after the crawl.
func NewBrowserRenderer(b *Browser, opts ...BrowserRendererOption) *BrowserRenderer {
	r := &BrowserRenderer{
		browser:  b,
		idleWait: DefaultIdleWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render opens rawURL in a fresh tab, waits for the load event and network
// idle, then captures the serialized DOM.
func (r *BrowserRenderer) Render(ctx context.Context, rawURL string) (*model.Page, error) {
	started := time.Now()

	page, cleanup, err := r.openPage(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc := &documentResponse{}
	go page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		doc.set(e.Response.Status, e.Response.MIMEType)
		return true
	})()

	waitIdle := r.idleWaiter(page)
	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to wait for load: %w", err)
	}
	waitIdle()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}
	finalURL := info.URL

	status, contentType := doc.get()
	if status >= http.StatusBadRequest {
		return nil, &StatusError{URL: finalURL, StatusCode: status}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to capture document: %w", err)
	}
	body := []byte(html)

	parsed, err := parser.ParseBytes(body, finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", finalURL, err)
	}
	title := parsed.Title
	if title == "" {
		title = info.Title
	}

	r.logger.Debug("rendered document",
		"url", rawURL,
		"final_url", finalURL,
		"status", status,
		"bytes", len(body),
	)

	p := &model.Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: contentType,
		Title:       title,
		HTML:        body,
		Links:       parsed.Links,
		BaseURL:     parsed.BaseURL,
		FetchedAt:   time.Now(),
		Duration:    time.Since(started),
	}
	p.ComputeHash()
	return p, nil
}

// idleWaiter starts watching network activity on page. The returned
// func blocks until the network has been idle for idleWait.
func (r *BrowserRenderer) idleWaiter(page *rod.Page) func() {
	if r.idleWait == 0 {
		return func() {}
	}
	return page.WaitRequestIdle(r.idleWait, nil, nil, nil)
}

// PrintPDF loads document into a blank tab and prints it. Relative
// resources are fetched from baseURL through the document's <base href>.
func (r *BrowserRenderer) PrintPDF(ctx context.Context, document []byte, baseURL string) ([]byte, error) {
	page, cleanup, err := r.openPage(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	r.logger.Debug("printing document", "base_url", baseURL, "bytes", len(document))

	waitIdle := r.idleWaiter(page)
	if err := page.SetDocumentContent(string(document)); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to wait for load: %w", err)
	}
	waitIdle()

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("failed to print: %w", err)
	}
	defer func() { _ = stream.Close() }()

	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf stream: %w", err)
	}
	return out, nil
}

// openPage opens a tab bound to ctx with the configured identity applied.
func (r *BrowserRenderer) openPage(ctx context.Context) (*rod.Page, func(), error) {
	page, err := r.browser.NewPage()
	if err != nil {
		return nil, nil, err
	}
	closePage := func() { _ = page.Close() }
	page = page.Context(ctx)

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			closePage()
			return nil, nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	headers := r.headerList()
	if len(headers) == 0 {
		return page, closePage, nil
	}
	restore, err := page.SetExtraHeaders(headers)
	if err != nil {
		closePage()
		return nil, nil, fmt.Errorf("failed to set headers: %w", err)
	}
	return page, func() {
		restore()
		closePage()
	}, nil
}

// headerList returns the extra headers as rod's flat key/value list,
// sorted by name.
func (r *BrowserRenderer) headerList() []string {
	keys := make([]string, 0, len(r.headers))
	for k := range r.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys)*2+2)
	for _, k := range keys {
		list = append(list, k, r.headers[k])
	}
	if r.cookie != "" {
		list = append(list, "Cookie", r.cookie)
	}
	return list
}

// documentResponse records the main document response observed on a tab.
type documentResponse struct {
	mu          sync.Mutex
	status      int
	contentType string
}

func (d *documentResponse) set(status int, contentType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		d.status = status
		d.contentType = contentType
	}
}

func (d *documentResponse) get() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.contentType
}
