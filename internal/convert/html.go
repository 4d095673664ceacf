package convert

import (
	"context"

	"github.com/nao1215/websaver/internal/model"
)

// HTMLConverter emits the rendered document as-is.
type HTMLConverter struct{}

// NewHTMLConverter creates an HTMLConverter.
func NewHTMLConverter() *HTMLConverter {
	return &HTMLConverter{}
}

// Format returns model.FormatHTML.
func (c *HTMLConverter) Format() model.Format {
	return model.FormatHTML
}

// Convert returns a copy of the rendered document, byte for byte.
func (c *HTMLConverter) Convert(_ context.Context, page *model.Page) ([]byte, error) {
	if len(page.HTML) == 0 {
		return nil, ErrEmptyDocument
	}
	return append([]byte(nil), page.HTML...), nil
}
