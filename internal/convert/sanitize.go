package convert

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonContentSelector matches elements that never carry readable content.
const nonContentSelector = "script, style, noscript, template, link, meta"

// interactiveSelector matches elements that only make sense in a live
// browser and are dropped from printed documents.
const interactiveSelector = "script, noscript, template, iframe, frame, frameset, object, embed, applet, dialog, video, audio"

// parseDocument parses a copy of the page document.
func parseDocument(content []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// stripEventHandlers removes inline on* attributes and javascript: links.
func stripEventHandlers(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		attrs := node.Attr[:0]
		for _, a := range node.Attr {
			if strings.HasPrefix(strings.ToLower(a.Key), "on") {
				continue
			}
			if (a.Key == "href" || a.Key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
				continue
			}
			attrs = append(attrs, a)
		}
		node.Attr = attrs
	})
}

// setBase makes base the only <base href> of the document so that relative
// resources resolve against the original page.
func setBase(doc *goquery.Document, base string) {
	if base == "" {
		return
	}
	doc.Find("base").Remove()
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return
	}
	head.PrependHtml(`<base href="` + escapeAttr(base) + `">`)
}

// absoluteURL resolves raw against base, leaving raw untouched when it is
// empty, a fragment, or cannot be parsed.
func absoluteURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.Scheme == "data" || ref.Scheme == "mailto" || ref.Scheme == "tel" {
		return raw
	}
	return base.ResolveReference(ref).String()
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
