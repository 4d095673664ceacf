package render

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/nao1215/websaver/internal/model"
	"github.com/nao1215/websaver/internal/parser"
)

// DefaultMaxBodySize bounds documents read by HTTPRenderer.
const DefaultMaxBodySize int64 = 10 << 20

// acceptedEncodings is advertised to servers. Decoding is done here
// because the transport's transparent gzip does not cover brotli.
const acceptedEncodings = "br, gzip"

// HTTPRenderer fetches documents without executing scripts.
type HTTPRenderer struct {
	client      *http.Client
	maxBodySize int64
	logger      *slog.Logger
}

// HTTPOption configures an HTTPRenderer.
type HTTPOption func(*HTTPRenderer)

// WithMaxBodySize bounds the decoded document size.
func WithMaxBodySize(n int64) HTTPOption {
	return func(r *HTTPRenderer) {
		if n > 0 {
			r.maxBodySize = n
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(r *HTTPRenderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewHTTPRenderer creates an HTTPRenderer using client.
func NewHTTPRenderer(client *http.Client, opts ...HTTPOption) *HTTPRenderer {
	r := &HTTPRenderer{
		client:      client,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render fetches rawURL and returns its document. Responses with an error
// status or a non-HTML content type are failures.
func (r *HTTPRenderer) Render(ctx context.Context, rawURL string) (*model.Page, error) {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", acceptedEncodings)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	finalURL := resp.Request.URL.String()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: finalURL, StatusCode: resp.StatusCode}
	}

	contentType, err := documentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body, err := r.readBody(resp)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.ParseBytes(body, finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", finalURL, err)
	}

	r.logger.Debug("fetched document",
		"url", rawURL,
		"final_url", finalURL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	page := &model.Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Title:       parsed.Title,
		HTML:        body,
		Links:       parsed.Links,
		BaseURL:     parsed.BaseURL,
		FetchedAt:   time.Now(),
		Duration:    time.Since(started),
	}
	page.ComputeHash()
	return page, nil
}

// readBody decodes the response body, enforcing the size limit on the
// decoded bytes.
func (r *HTTPRenderer) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip body: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	default:
		return nil, fmt.Errorf("%w: content encoding %q", ErrUnsupportedContent, resp.Header.Get("Content-Encoding"))
	}

	body, err := io.ReadAll(io.LimitReader(reader, r.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > r.maxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, r.maxBodySize)
	}
	return body, nil
}

// documentType returns the media type of an HTML response. A missing
// Content-Type is treated as HTML.
func documentType(header string) (string, error) {
	if header == "" {
		return "text/html", nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, header)
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
}
