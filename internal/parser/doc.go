// Package parser extracts the title, the document base and the outbound
// links from rendered HTML using golang.org/x/net/html.
package parser
