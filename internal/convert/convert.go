package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/websaver/internal/model"
)

var (
	// ErrEmptyDocument is returned when a page has no content to convert.
	ErrEmptyDocument = errors.New("page has no document content")

	// ErrPrinterRequired is returned when PDF output is requested without a Printer.
	ErrPrinterRequired = errors.New("pdf output requires a document printer")
)

// FormatConverter produces one format. Implementations are safe for
// concurrent use and never modify the page.
type FormatConverter interface {
	Format() model.Format
	Convert(ctx context.Context, page *model.Page) ([]byte, error)
}

// Set dispatches pages to the converter of the requested format.
type Set struct {
	converters map[model.Format]FormatConverter
	formats    []model.Format
	printer    Printer
}

// Option configures a Set.
type Option func(*Set)

// WithPrinter sets the Printer used for PDF output.
func WithPrinter(p Printer) Option {
	return func(s *Set) {
		s.printer = p
	}
}

// New builds converters for formats. It fails with model.ErrUnsupportedFormat
// for an unknown format and with ErrPrinterRequired when PDF is requested
// without a Printer.
func New(formats []model.Format, opts ...Option) (*Set, error) {
	s := &Set{converters: make(map[model.Format]FormatConverter, len(formats))}
	for _, opt := range opts {
		opt(s)
	}

	for _, f := range formats {
		if _, ok := s.converters[f]; ok {
			continue
		}
		var c FormatConverter
		switch f {
		case model.FormatHTML:
			c = NewHTMLConverter()
		case model.FormatMarkdown:
			c = NewMarkdownConverter()
		case model.FormatPDF:
			if s.printer == nil {
				return nil, ErrPrinterRequired
			}
			c = NewPDFConverter(s.printer)
		default:
			return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, f)
		}
		s.converters[f] = c
		s.formats = append(s.formats, f)
	}
	return s, nil
}

// Formats returns the configured formats in order.
func (s *Set) Formats() []model.Format {
	return append([]model.Format(nil), s.formats...)
}

// Convert produces the given format of page.
func (s *Set) Convert(ctx context.Context, page *model.Page, format model.Format) ([]byte, error) {
	c, ok := s.converters[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", model.ErrUnsupportedFormat, format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(page.HTML) == 0 {
		return nil, ErrEmptyDocument
	}
	return c.Convert(ctx, page)
}
