package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/websaver/internal/model"
)

// JSONWriter outputs summaries in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// version is recorded in the output when set.
	version string

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the websaver version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps a summary with derived fields so consumers do not have
// to recompute them.
type JSONReport struct {
	// Version is the websaver version that produced the report.
	Version string `json:"version,omitempty"`

	// Outcome classifies the run.
	Outcome model.Outcome `json:"outcome"`

	// DurationMS is the wall time of the run in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Summary is the full run summary.
	Summary *model.RunSummary `json:"summary"`
}

// NewJSONReport creates a JSONReport for summary.
func NewJSONReport(summary *model.RunSummary, version string) *JSONReport {
	return &JSONReport{
		Version:    version,
		Outcome:    summary.Outcome(),
		DurationMS: summary.Duration().Milliseconds(),
		Summary:    summary,
	}
}

// Write outputs the summary in JSON format.
func (w *JSONWriter) Write(summary *model.RunSummary) (int, error) {
	return w.writeJSON(NewJSONReport(summary, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
