package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned when an output format name is not recognized.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format identifies a persisted representation of a page.
type Format string

const (
	// FormatHTML is the structured-markup form: the rendered document as-is.
	FormatHTML Format = "html"

	// FormatMarkdown is the readable-text form: a lightweight markup
	// conversion preserving headings, lists, tables and links.
	FormatMarkdown Format = "markdown"

	// FormatPDF is the paginated-document form: a print rendering of the page.
	FormatPDF Format = "pdf"
)

// AllFormats lists every supported format in a stable order.
var AllFormats = []Format{FormatHTML, FormatMarkdown, FormatPDF}

// formatAliases maps accepted names to formats.
var formatAliases = map[string]Format{
	"html":               FormatHTML,
	"htm":                FormatHTML,
	"structured-markup":  FormatHTML,
	"markdown":           FormatMarkdown,
	"md":                 FormatMarkdown,
	"readable-text":      FormatMarkdown,
	"pdf":                FormatPDF,
	"paginated-document": FormatPDF,
}

// ParseFormat converts a user supplied name into a Format.
// Matching is case-insensitive and accepts the long descriptive names.
func ParseFormat(name string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// ParseFormats converts a list of names into formats, dropping duplicates
// while keeping the first-seen order.
func ParseFormats(names []string) ([]Format, error) {
	seen := make(map[Format]bool, len(names))
	formats := make([]Format, 0, len(names))
	for _, name := range names {
		// Allow comma separated values inside a single flag.
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			f, err := ParseFormat(part)
			if err != nil {
				return nil, err
			}
			if seen[f] {
				continue
			}
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// Extension returns the file extension, without the dot, used for artifacts
// of this format.
func (f Format) Extension() string {
	switch f {
	case FormatHTML:
		return "html"
	case FormatMarkdown:
		return "md"
	case FormatPDF:
		return "pdf"
	default:
		return "bin"
	}
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatHTML, FormatMarkdown, FormatPDF:
		return true
	default:
		return false
	}
}

// String returns the canonical format name.
func (f Format) String() string {
	return string(f)
}
