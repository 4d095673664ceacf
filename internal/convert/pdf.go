package convert

import (
	"context"
	"fmt"

	"github.com/nao1215/websaver/internal/model"
)

// Printer prints an HTML document to PDF. baseURL is the address relative
// resources of the document are loaded from.
type Printer interface {
	PrintPDF(ctx context.Context, document []byte, baseURL string) ([]byte, error)
}

// PDFConverter produces the paginated-document form of a page.
// Scripts, frames, media and inline event handlers are removed before
// printing, so the PDF shows the page as it was rendered, without
// interactive behaviour.
type PDFConverter struct {
	printer Printer
}

// NewPDFConverter creates a PDFConverter printing through p.
func NewPDFConverter(p Printer) *PDFConverter {
	return &PDFConverter{printer: p}
}

// Format returns model.FormatPDF.
func (c *PDFConverter) Format() model.Format {
	return model.FormatPDF
}

// Convert prints a sanitized copy of the page.
func (c *PDFConverter) Convert(ctx context.Context, page *model.Page) ([]byte, error) {
	document, err := PrintableDocument(page)
	if err != nil {
		return nil, err
	}
	out, err := c.printer.PrintPDF(ctx, document, page.LinkBase())
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to print pdf: %w", ErrEmptyDocument)
	}
	return out, nil
}

// PrintableDocument returns the page document with interactive elements
// removed and a <base href> pointing at the page.
func PrintableDocument(page *model.Page) ([]byte, error) {
	doc, err := parseDocument(page.HTML)
	if err != nil {
		return nil, err
	}
	doc.Find(interactiveSelector).Remove()
	stripEventHandlers(doc)
	setBase(doc, page.LinkBase())

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return []byte(html), nil
}
