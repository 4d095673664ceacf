package report

import (
	"io"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.RunSummary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// millisecond is the precision durations are reported with.
const millisecond = time.Millisecond

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// outcomeText describes the outcome of a run in one line.
func outcomeText(summary *model.RunSummary) string {
	switch summary.Outcome() {
	case model.OutcomeCancelled:
		return "Cancelled (partial results)"
	case model.OutcomeNoPages:
		return "No pages saved"
	case model.OutcomePartial:
		return "Completed with failures"
	default:
		return "Complete"
	}
}

// formatList joins formats with commas.
func formatList(formats []model.Format) string {
	out := ""
	for i, f := range formats {
		if i > 0 {
			out += ", "
		}
		out += f.String()
	}
	return out
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
