// Package database provides SQLite-based crawl history for websaver.
//
// The CrawlDB stores:
//   - one row per run with its counters, outcome and full summary
//   - one row per page visited in a run
//   - the artifacts written and the failures recorded for each page
//
// Page rows are written while the crawl is running, through the
// crawler.Recorder interface, and the run row is written once the crawl
// has finished. SQLite is accessed through modernc.org/sqlite, a CGO-free
// driver, so the binary cross-compiles without a C toolchain.
package database
