// Package main provides the entry point for the websaver CLI.
//
// websaver crawls a website from a seed URL and saves every in-scope page
// as HTML, Markdown or PDF.
//
// Usage:
//
//	websaver crawl <url>
//	websaver crawl -f html -f pdf <url>
//	websaver history [host]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
