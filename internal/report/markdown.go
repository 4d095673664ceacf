package report

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/websaver/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeSummary(md, summary)
	w.writeArtifacts(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("websaver Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + summary.Seed + "`"},
		{"Run ID", "`" + summary.RunID + "`"},
		{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", summary.Duration().Round(millisecond).String()},
		{"Formats", formatList(summary.Formats)},
	}
	if summary.OutputDir != "" {
		rows = append(rows, []string{"Output", "`" + summary.OutputDir + "`"})
	}
	rows = append(rows, []string{"Status", outcomeText(summary)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the counters, a chart and an outcome alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages saved", strconv.Itoa(summary.Visited)},
			{"Pages failed", strconv.Itoa(summary.Failed)},
			{"URLs discovered", strconv.Itoa(summary.Discovered)},
			{"Links rejected", strconv.Itoa(summary.ScopeRejected)},
			{"Artifacts", strconv.Itoa(len(summary.Artifacts)) + " (" + humanize.Bytes(totalSize(summary)) + ")"},
			{"**Failures**", "**" + strconv.Itoa(len(summary.Failures)) + "**"},
		},
	})
	md.PlainText("")

	if summary.Visited > 0 && summary.Failed > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of saved and failed pages.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pages"),
		piechart.WithShowData(true),
	)
	chart.LabelAndIntValue("Saved", uint64(summary.Visited))
	chart.LabelAndIntValue("Failed", uint64(summary.Failed))

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.RunSummary) {
	switch summary.Outcome() {
	case model.OutcomeCancelled:
		md.Warningf("The run was cancelled after saving %d page(s). Results are partial.", summary.Visited)
	case model.OutcomeNoPages:
		md.Caution("No page could be saved. Check the seed URL and the fetch failures below.")
	case model.OutcomePartial:
		md.Importantf("%d failure(s) were recorded. See the failures section for details.", len(summary.Failures))
	default:
		md.Tip("Every visited page was saved in every requested format.")
	}
	md.PlainText("")
}

// writeArtifacts writes the table of saved artifacts.
func (w *MarkdownWriter) writeArtifacts(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Artifacts")
	md.PlainText("")

	if len(summary.Artifacts) == 0 {
		md.PlainText("No artifacts were written.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Artifacts))
	for i, a := range summary.Artifacts {
		rows[i] = []string{
			truncateString(a.URL, 80),
			a.Format.String(),
			"`" + a.Path + "`",
			humanize.Bytes(uint64(max(a.Size, 0))),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Format", "Path", "Size"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes the table of failures, if any.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.RunSummary) {
	if len(summary.Failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(summary.Failures))
	for i, f := range summary.Failures {
		format := "-"
		if f.Format != "" {
			format = f.Format.String()
		}
		rows[i] = []string{
			truncateString(f.URL, 80),
			string(f.Kind),
			format,
			truncateString(f.Reason, 100),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Format", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [websaver](https://github.com/nao1215/websaver)*")
}
