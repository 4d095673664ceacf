package parser

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result holds what was extracted from one document.
type Result struct {
	// Title is the text of the first <title> element.
	Title string

	// BaseURL is the resolved <base href>, or empty when the document has none.
	BaseURL string

	// Links are raw href values of <a> and <area> elements in document order.
	// They are neither resolved nor deduplicated.
	Links []string
}

// Parse walks the document read from r. pageURL is the address of the
// document and is only used to resolve a relative <base href>.
func Parse(r io.Reader, pageURL string) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	result := &Result{Links: make([]string, 0)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			processElement(n, pageURL, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// ParseBytes is Parse for an in-memory document.
func ParseBytes(content []byte, pageURL string) (*Result, error) {
	return Parse(bytes.NewReader(content), pageURL)
}

func processElement(n *html.Node, pageURL string, result *Result) {
	switch n.DataAtom {
	case atom.Title:
		if result.Title == "" {
			result.Title = strings.Join(strings.Fields(textContent(n)), " ")
		}

	case atom.Base:
		// Only the first <base href> counts.
		if result.BaseURL != "" {
			return
		}
		if href := strings.TrimSpace(getAttr(n, "href")); href != "" {
			result.BaseURL = resolve(pageURL, href)
		}

	case atom.A, atom.Area:
		href := strings.TrimSpace(getAttr(n, "href"))
		if href == "" {
			return
		}
		// Download links point at files, not pages.
		if hasAttr(n, "download") {
			return
		}
		result.Links = append(result.Links, href)
	}
}

// resolve returns href resolved against base, or href itself when either
// cannot be parsed.
func resolve(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
