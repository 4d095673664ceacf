package convert

import (
	"context"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/websaver/internal/model"
)

// MarkdownConverter produces the readable-text form of a page.
// Headings use ATX style, lists use "-", code blocks are fenced and tables
// are kept as GitHub flavoured tables. Links and images point at absolute
// URLs so the output stays usable outside the site.
type MarkdownConverter struct{}

// NewMarkdownConverter creates a MarkdownConverter.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

// Format returns model.FormatMarkdown.
func (c *MarkdownConverter) Format() model.Format {
	return model.FormatMarkdown
}

// Convert renders page as Markdown. The same page always yields the same text.
func (c *MarkdownConverter) Convert(_ context.Context, page *model.Page) ([]byte, error) {
	doc, err := parseDocument(page.HTML)
	if err != nil {
		return nil, err
	}
	doc.Find(nonContentSelector).Remove()

	base, err := url.Parse(page.LinkBase())
	if err != nil {
		base = nil
	}
	domain := ""
	if base != nil {
		domain = base.Host
	}

	// A converter holds per-call state, so one is built per page.
	conv := md.NewConverter(domain, true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		Fence:            "```",
		GetAbsoluteURL: func(_ *goquery.Selection, rawURL string, _ string) string {
			return absoluteURL(base, rawURL)
		},
	})
	conv.Use(plugin.GitHubFlavored())

	content := doc.Find("body").First()
	if content.Length() == 0 {
		content = doc.Selection
	}
	text := strings.TrimSpace(conv.Convert(content))

	title := strings.TrimSpace(page.Title)
	if title != "" && content.Find("h1").Length() == 0 {
		if text == "" {
			text = "# " + title
		} else {
			text = "# " + title + "\n\n" + text
		}
	}
	return []byte(text + "\n"), nil
}
