// Package report renders run summaries.
//
// Three formats are available:
//   - SimpleWriter produces a plain text summary for terminals
//   - MarkdownWriter produces a Markdown document for sharing
//   - JSONWriter produces machine readable output
//
// All writers implement Writer, and MultiWriter fans one summary out to
// several of them, for example the terminal and a report file.
package report
