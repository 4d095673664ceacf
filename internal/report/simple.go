package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/websaver/internal/model"
)

// SimpleWriter outputs human-readable text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every artifact instead of only the failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables listing every artifact.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	if w.verbose {
		w.writeArtifacts(&sb, summary)
	}
	w.writeFailures(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         WEBSAVER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:       %s\n", summary.Seed)
	fmt.Fprintf(sb, "Run ID:     %s\n", summary.RunID)
	fmt.Fprintf(sb, "Started:    %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:   %s\n", summary.Duration().Round(millisecond))
	fmt.Fprintf(sb, "Formats:    %s\n", formatList(summary.Formats))
	if summary.OutputDir != "" {
		fmt.Fprintf(sb, "Output:     %s\n", summary.OutputDir)
	}
	fmt.Fprintf(sb, "Status:     %s\n", outcomeText(summary))
	sb.WriteString("\n")
}

// writeCounts writes the page and artifact counters.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, summary *model.RunSummary) {
	section(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Pages saved:      %d\n", summary.Visited)
	fmt.Fprintf(sb, "  Pages failed:     %d\n", summary.Failed)
	fmt.Fprintf(sb, "  URLs discovered:  %d\n", summary.Discovered)
	fmt.Fprintf(sb, "  Links rejected:   %d\n", summary.ScopeRejected)
	fmt.Fprintf(sb, "  Artifacts:        %d (%s)\n", len(summary.Artifacts), humanize.Bytes(totalSize(summary)))
	fmt.Fprintf(sb, "  Failures:         %d\n", len(summary.Failures))
	sb.WriteString("\n")
}

// writeArtifacts lists every artifact.
func (w *SimpleWriter) writeArtifacts(sb *strings.Builder, summary *model.RunSummary) {
	if len(summary.Artifacts) == 0 {
		return
	}
	section(sb, "ARTIFACTS")
	for _, a := range summary.Artifacts {
		fmt.Fprintf(sb, "  [+] %-8s %s -> %s (%s)\n", a.Format, a.URL, a.Path, humanize.Bytes(uint64(max(a.Size, 0))))
	}
	sb.WriteString("\n")
}

// writeFailures lists failures grouped by kind.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, summary *model.RunSummary) {
	if len(summary.Failures) == 0 {
		return
	}
	section(sb, "FAILURES")

	for _, kind := range []model.FailureKind{model.FailureFetch, model.FailureConversion, model.FailureWrite} {
		failures := summary.FailuresByKind(kind)
		if len(failures) == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %s (%d)\n", kindTitle(kind), len(failures))
		for _, f := range failures {
			target := f.URL
			if f.Format != "" {
				target += " [" + f.Format.String() + "]"
			}
			fmt.Fprintf(sb, "    [-] %s\n", target)
			fmt.Fprintf(sb, "        %s\n", truncateString(f.Reason, 120))
		}
		sb.WriteString("\n")
	}
}

func kindTitle(kind model.FailureKind) string {
	switch kind {
	case model.FailureFetch:
		return "Fetch failures"
	case model.FailureConversion:
		return "Conversion failures"
	case model.FailureWrite:
		return "Write failures"
	default:
		return string(kind)
	}
}

func totalSize(summary *model.RunSummary) uint64 {
	var total uint64
	for _, a := range summary.Artifacts {
		if a.Size > 0 {
			total += uint64(a.Size)
		}
	}
	return total
}
