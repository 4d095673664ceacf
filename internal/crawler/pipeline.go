package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// process runs the pipeline of one URL: render, discover links, convert
// and write every format, then finish the frontier entry. It never
// returns an error; every failure ends up in the summary.
func (c *crawl) process(ctx context.Context, entry Entry) {
	logger := c.logger.With("url", entry.URL, "depth", entry.Depth)
	start := c.now()

	page, err := c.render(ctx, entry)
	if err != nil {
		if ctx.Err() == nil && c.frontier.Retry(entry.Key) {
			logger.Warn("render failed, retrying", "attempt", entry.Attempts, "error", err)
			return
		}
		c.frontier.MarkFailed(entry.Key)
		failure := model.Failure{
			URL:      entry.Key,
			Kind:     model.FailureFetch,
			Reason:   err.Error(),
			Attempts: entry.Attempts,
			Time:     c.now(),
		}
		c.addFailure(failure)
		logger.Warn("render failed", "attempts", entry.Attempts, "error", err)

		c.record(ctx, logger, &model.PageRecord{
			RunID:     c.summary.RunID,
			URL:       entry.Key,
			Depth:     entry.Depth,
			State:     model.PageFailed,
			Failures:  []model.Failure{failure},
			Duration:  c.now().Sub(start),
			Timestamp: c.now(),
		})
		return
	}

	if added := c.discover(page, entry); added > 0 {
		logger.Debug("links admitted", "count", added)
		c.signal()
	}

	record := &model.PageRecord{
		RunID:      c.summary.RunID,
		URL:        entry.Key,
		Depth:      entry.Depth,
		State:      model.PageDone,
		StatusCode: page.StatusCode,
		Title:      page.Title,
		Hash:       page.Hash,
	}
	for _, format := range c.formats {
		artifact, failure := c.save(ctx, page, format)
		if failure != nil {
			c.addFailure(*failure)
			record.Failures = append(record.Failures, *failure)
			logger.Warn("format failed", "format", format, "kind", failure.Kind, "error", failure.Reason)
			continue
		}
		c.addArtifact(*artifact)
		record.Artifacts = append(record.Artifacts, *artifact)
	}

	c.frontier.MarkDone(entry.Key)
	logger.Debug("page saved", "artifacts", len(record.Artifacts), "status", page.StatusCode)

	record.Duration = c.now().Sub(start)
	record.Timestamp = c.now()
	c.record(ctx, logger, record)
}

// render calls the renderer under the per-render timeout.
func (c *crawl) render(ctx context.Context, entry Entry) (*model.Page, error) {
	renderCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	page, err := c.renderer.Render(renderCtx, entry.URL)
	if err == nil && page == nil {
		err = ErrEmptyPage
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrRenderTimeout, c.timeout, err)
		}
		return nil, err
	}

	page.Key = entry.Key
	if page.URL == "" {
		page.URL = entry.URL
	}
	if page.Hash == "" {
		page.ComputeHash()
	}
	if page.Duration == 0 {
		page.Duration = time.Since(started)
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = c.now()
	}
	return page, nil
}

// discover admits the page's in-scope links at the next depth and
// returns how many new entries were created.
func (c *crawl) discover(page *model.Page, entry Entry) int {
	if c.maxDepth >= 0 && entry.Depth >= c.maxDepth {
		return 0
	}

	base, err := url.Parse(page.LinkBase())
	if err != nil {
		base, err = url.Parse(entry.URL)
		if err != nil {
			return 0
		}
	}

	added, rejected := 0, 0
	for _, raw := range page.Links {
		key, target, err := c.normalizer.Normalize(raw, base)
		if err != nil {
			rejected++
			continue
		}
		if c.frontier.Enqueue(key, target.String(), entry.Depth+1) {
			added++
		}
	}
	c.addRejected(rejected)
	return added
}

// convert runs the converter under the same timeout as a render. PDF
// printing drives the browser and can hang like a navigation.
func (c *crawl) convert(ctx context.Context, page *model.Page, format model.Format) ([]byte, error) {
	convertCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.converter.Convert(convertCtx, page, format)
	if err != nil {
		if ctx.Err() == nil && errors.Is(convertCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrConvertTimeout, c.timeout, err)
		}
		return nil, err
	}
	return content, nil
}

// save converts the page into one format and writes the artifact.
func (c *crawl) save(ctx context.Context, page *model.Page, format model.Format) (*model.ArtifactRecord, *model.Failure) {
	fail := func(kind model.FailureKind, err error) *model.Failure {
		return &model.Failure{
			URL:    page.Key,
			Format: format,
			Kind:   kind,
			Reason: err.Error(),
			Time:   c.now(),
		}
	}

	content, err := c.convert(ctx, page, format)
	if err != nil {
		return nil, fail(model.FailureConversion, err)
	}

	relPath, err := model.ArtifactPath(page.Key, format)
	if err != nil {
		return nil, fail(model.FailureWrite, err)
	}

	written, err := c.writer.Write(ctx, &model.Artifact{
		URL:     page.Key,
		Format:  format,
		Path:    relPath,
		Content: content,
	})
	if err != nil {
		return nil, fail(model.FailureWrite, err)
	}

	return &model.ArtifactRecord{
		URL:    page.Key,
		Format: format,
		Path:   written,
		Size:   len(content),
	}, nil
}

// record notifies every recorder. Recording outlives cancellation so that
// pages finished during shutdown still reach the history.
func (c *crawl) record(ctx context.Context, logger *slog.Logger, rec *model.PageRecord) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range c.recorders {
		if err := r.RecordPage(ctx, rec); err != nil {
			logger.Warn("failed to record page", "error", err)
		}
	}
}
