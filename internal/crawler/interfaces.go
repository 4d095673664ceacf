package crawler

import (
	"context"

	"github.com/nao1215/websaver/internal/model"
)

// Renderer loads a URL and returns its rendered document and raw links.
// Implementations must return once ctx is done. A non-success status is
// reported as an error.
type Renderer interface {
	Render(ctx context.Context, url string) (*model.Page, error)
}

// Converter produces one representation of a rendered page.
type Converter interface {
	Convert(ctx context.Context, page *model.Page, format model.Format) ([]byte, error)
}

// ArtifactWriter persists an artifact and returns the path it was written
// to, relative to the output root. It is called concurrently. The returned path may differ from
// artifact.Path when a name collision had to be resolved.
type ArtifactWriter interface {
	Write(ctx context.Context, artifact *model.Artifact) (string, error)
}

// Recorder observes finished pages, e.g. to keep crawl history.
// It is called concurrently from pipelines. Errors are logged and do not
// affect the crawl.
type Recorder interface {
	RecordPage(ctx context.Context, record *model.PageRecord) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, record *model.PageRecord) error

// RecordPage calls f.
func (f RecorderFunc) RecordPage(ctx context.Context, record *model.PageRecord) error {
	return f(ctx, record)
}
