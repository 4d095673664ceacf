// Package crawler implements the crawl engine of websaver.
//
// # Architecture
//
// A crawl is driven by the Spider. It owns a Frontier, the set of every URL
// admitted during the run together with its state, and a Normalizer that
// turns raw links into canonical keys and enforces the crawl Scope.
//
// The Spider runs a coordinating loop that takes pending entries from the
// frontier and launches one pipeline per URL, never more than the
// configured concurrency at once. A pipeline renders the page, admits
// its in-scope links to the frontier, converts the page into every
// requested format, hands each artifact to the writer and finally marks
// the entry done. Failures are recorded per page and never stop the run.
//
// # Components
//
//   - Spider: coordinating loop and per-URL pipelines
//   - Frontier: deduplicating breadth-first work set
//   - Normalizer and Scope: link canonicalization and scope rules
//   - Renderer, Converter, ArtifactWriter, Recorder: collaborators
//     supplied by the caller
//
// # Usage
//
//	spider := crawler.NewSpider(renderer, converters, fileWriter,
//		crawler.WithConcurrency(4),
//		crawler.WithFormats(model.FormatMarkdown, model.FormatPDF),
//	)
//	summary, err := spider.Run(ctx, "https://example.com/")
package crawler
