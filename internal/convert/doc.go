// Package convert turns rendered pages into their persisted formats.
//
// Each format has its own converter:
//
//   - HTMLConverter returns the rendered document unchanged
//   - MarkdownConverter produces GitHub flavoured Markdown with absolute links
//   - PDFConverter prints a script-free copy of the page through a Printer
//
// A Set bundles the converters for the formats of a run and is built once,
// at configuration time, so that unknown formats fail before crawling.
package convert
